package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/access"
)

const maxEventPage = 1000

// handleListEvents pages through the persisted event log.
// Query: after=<seq>&limit=<n>.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after *uint64
	if v := q.Get("after"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidArgument", "invalid after "+strconv.Quote(v))
			return
		}
		after = &seq
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "InvalidArgument", "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventPage)
	}

	events, err := app.ListEvents(r.Context(), s.svc.Store, after, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleEventStream pushes committed events as Server-Sent Events.
// Query: names=VoteCast,EmergencyPayout limits the stream to those events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Internal", "streaming not supported")
		return
	}

	var names []string
	if v := r.URL.Query().Get("names"); v != "" {
		names = strings.Split(v, ",")
	}
	id, ch := s.svc.Bus.Subscribe(0, names...)
	defer s.svc.Bus.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("encode event", "seq", evt.Seq, "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Name, data)
			flusher.Flush()
		}
	}
}

// ─── Roles ──────────────────────────────────────────────────────────────────

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]domain.Identity{
		string(access.RoleAdmin):  s.svc.Roles.Holder(access.RoleAdmin),
		string(access.RoleOracle): s.svc.Roles.Holder(access.RoleOracle),
	})
}

type rotateRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) handleRotateRole(w http.ResponseWriter, r *http.Request) {
	role, err := access.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req rotateRequest
	if !decode(w, r, &req) {
		return
	}
	caller, err := domain.CallerFromContext(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.svc.Roles.Rotate(caller, role, domain.Identity(req.Identity)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("role rotated", "role", role, "holder", req.Identity)
	writeJSON(w, http.StatusOK, map[string]string{
		"role":     string(role),
		"identity": req.Identity,
	})
}
