// Package api provides the HTTP server for cityledger.
// Every ledger operation is exposed as JSON under /api/v1; the caller's
// identity is taken from the X-Caller-Identity header.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/cityledger/internal/app/agents"
	"github.com/tutu-network/cityledger/internal/app/emergency"
	"github.com/tutu-network/cityledger/internal/app/fund"
	"github.com/tutu-network/cityledger/internal/app/governance"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/health"
	"github.com/tutu-network/cityledger/internal/infra/access"
	"github.com/tutu-network/cityledger/internal/infra/eventbus"
)

// CallerHeader carries the identity of the calling citizen or role holder.
const CallerHeader = "X-Caller-Identity"

// Version is reported by /api/version.
const Version = "0.3.0"

// Services bundles the ledgers the server exposes.
type Services struct {
	Governance *governance.Service
	Fund       *fund.Ledger
	Emergency  *emergency.Service
	Agents     *agents.Registry
	Roles      *access.Roles
	Store      domain.Store
	Bus        *eventbus.Bus   // Live event stream (nil disables it)
	Health     *health.Checker // nil reports healthy
}

// Server is the cityledger HTTP API server.
type Server struct {
	svc            Services
	logger         *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(svc Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger.With("component", "api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(callerMiddleware)

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived stream; not subject to the request timeout.
		if s.svc.Bus != nil {
			r.Get("/events/stream", s.handleEventStream)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/proposals", func(r chi.Router) {
				r.Get("/", s.handleListProposals)
				r.Post("/", s.handleCreateProposal)
				r.Post("/resolve-expired", s.handleResolveExpired)
				r.Get("/{id}", s.handleGetProposal)
				r.Post("/{id}/resolve", s.handleResolveProposal)
				r.Get("/{id}/votes", s.handleListBallots)
				r.Post("/{id}/votes", s.handleCastVote)
				r.Get("/{id}/votes/{voter}", s.handleHasVoted)
			})
			r.Get("/governance/stats", s.handleGovernanceStats)

			r.Route("/citizens", func(r chi.Router) {
				r.Get("/", s.handleTopCitizens)
				r.Get("/{identity}", s.handleProfile)
				r.Post("/{identity}/contributions", s.handleRewardContribution)
			})

			r.Route("/fund", func(r chi.Router) {
				r.Get("/", s.handleFundStats)
				r.Post("/contributions", s.handleContribute)
				r.Get("/contributions/{identity}", s.handleContribution)
			})

			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", s.handleListIncidents)
				r.Post("/", s.handleReportEmergency)
				r.Get("/{id}", s.handleGetIncident)
				r.Post("/{id}/verify", s.handleOracleVerify)
				r.Get("/{id}/votes", s.handlePayoutApprovals)
				r.Post("/{id}/votes", s.handleVoteForPayout)
				r.Post("/{id}/payout", s.handleExecutePayout)
			})

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", s.handleListAgents)
				r.Post("/", s.handleRegisterAgent)
				r.Get("/stats", s.handleAgentStats)
				r.Get("/{id}", s.handleGetAgent)
				r.Get("/{id}/decisions", s.handleListDecisions)
				r.Post("/{id}/decisions", s.handleRecordDecision)
				r.Post("/{id}/performance", s.handleUpdatePerformance)
				r.Put("/{id}/status", s.handleSetAgentStatus)
			})

			r.Get("/roles", s.handleListRoles)
			r.Put("/roles/{role}", s.handleRotateRole)

			r.Get("/events", s.handleListEvents)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"healthy": true})
		return
	}
	status := http.StatusOK
	healthy := s.svc.Health.IsHealthy()
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"checks":  s.svc.Health.Statuses(),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
		},
	})
}

// statusForKind maps a domain error kind to its HTTP status.
var statusForKind = map[string]int{
	"Unauthorized":      http.StatusForbidden,
	"NotFound":          http.StatusNotFound,
	"InvalidState":      http.StatusConflict,
	"DuplicateVote":     http.StatusConflict,
	"InvalidAmount":     http.StatusBadRequest,
	"InvalidSeverity":   http.StatusBadRequest,
	"InvalidArgument":   http.StatusBadRequest,
	"TooEarly":          http.StatusTooEarly,
	"InsufficientFunds": http.StatusUnprocessableEntity,
}

// writeDomainError maps err to a status and writes it.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNoCaller) {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing "+CallerHeader+" header")
		return
	}
	kind := domain.ErrorKind(err)
	status, ok := statusForKind[kind]
	if !ok {
		status = http.StatusInternalServerError
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeError(w, status, kind, err.Error())
}

// decode reads a JSON request body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// idParam parses the {id} path parameter, writing a 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "invalid id "+strconv.Quote(raw))
		return 0, false
	}
	return uint32(id), true
}

// callerMiddleware attaches the X-Caller-Identity header to the request
// context.
func callerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(CallerHeader); id != "" {
			r = r.WithContext(domain.WithCaller(r.Context(), domain.Identity(id)))
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+CallerHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
