package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/cityledger/internal/domain"
)

// ─── Fund ───────────────────────────────────────────────────────────────────

type contributeRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req contributeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.Fund.Contribute(r.Context(), req.Amount); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleFundStats(w, r)
}

func (s *Server) handleFundStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Emergency.FundStats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleContribution(w http.ResponseWriter, r *http.Request) {
	amount, err := s.svc.Fund.Contribution(r.Context(), domain.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

// ─── Incidents ──────────────────────────────────────────────────────────────

type reportRequest struct {
	IncidentType     string `json:"incident_type"`
	Location         string `json:"location"`
	Description      string `json:"description"`
	Severity         uint32 `json:"severity"`
	AffectedCitizens uint32 `json:"affected_citizens"`
}

func (s *Server) handleReportEmergency(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decode(w, r, &req) {
		return
	}
	typ, err := domain.ParseIncidentType(req.IncidentType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	id, err := s.svc.Emergency.ReportEmergency(r.Context(), typ,
		req.Location, req.Description, req.Severity, req.AffectedCitizens)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	var filter *domain.IncidentStatus
	if q := r.URL.Query().Get("status"); q != "" {
		var st domain.IncidentStatus
		if err := st.UnmarshalText([]byte(q)); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
			return
		}
		filter = &st
	}
	incidents, err := s.svc.Emergency.ListIncidents(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inc, err := s.svc.Emergency.GetIncident(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type verifyRequest struct {
	Confidence    uint32 `json:"confidence"`
	EstimatedCost uint64 `json:"estimated_cost"`
}

func (s *Server) handleOracleVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.Emergency.OracleVerify(r.Context(), id, req.Confidence, req.EstimatedCost); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetIncident(w, r)
}

type payoutVoteRequest struct {
	Approve bool `json:"approve"`
}

func (s *Server) handleVoteForPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req payoutVoteRequest
	if !decode(w, r, &req) {
		return
	}
	executed, err := s.svc.Emergency.VoteForPayout(r.Context(), id, req.Approve)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"payout_executed": executed})
}

func (s *Server) handlePayoutApprovals(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	tally, err := s.svc.Emergency.PayoutApprovals(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func (s *Server) handleExecutePayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.svc.Emergency.ExecutePayout(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetIncident(w, r)
}
