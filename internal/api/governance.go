package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/cityledger/internal/domain"
)

// ─── Proposals ──────────────────────────────────────────────────────────────

type createProposalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Budget      uint64 `json:"budget"`
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.svc.Governance.CreateProposal(r.Context(), req.Title, req.Description, req.Budget)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	var filter *domain.ProposalStatus
	if q := r.URL.Query().Get("status"); q != "" {
		st, err := domain.ParseProposalStatus(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
			return
		}
		filter = &st
	}
	proposals, err := s.svc.Governance.ListProposals(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := s.svc.Governance.GetProposal(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type castVoteRequest struct {
	Support bool `json:"support"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req castVoteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.Governance.CastVote(r.Context(), id, req.Support); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBallots(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ballots, err := s.svc.Governance.Ballots(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ballots": ballots})
}

func (s *Server) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	voted, err := s.svc.Governance.HasVoted(r.Context(), id, domain.Identity(chi.URLParam(r, "voter")))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"voted": voted})
}

func (s *Server) handleResolveProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	status, err := s.svc.Governance.ResolveProposal(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Server) handleResolveExpired(w http.ResponseWriter, r *http.Request) {
	resolved, err := s.svc.Governance.ResolveExpired(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": resolved})
}

func (s *Server) handleGovernanceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Governance.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Citizens ───────────────────────────────────────────────────────────────

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Governance.Profile(r.Context(), domain.Identity(chi.URLParam(r, "identity")))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleTopCitizens(w http.ResponseWriter, r *http.Request) {
	n := 10
	if q := r.URL.Query().Get("top"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "InvalidArgument", "top must be a positive integer")
			return
		}
		n = v
	}
	top, err := s.svc.Governance.TopCitizens(r.Context(), n)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"citizens": top})
}

type rewardRequest struct {
	Points uint64 `json:"points"`
}

func (s *Server) handleRewardContribution(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if !decode(w, r, &req) {
		return
	}
	profile, err := s.svc.Governance.RewardContribution(r.Context(),
		domain.Identity(chi.URLParam(r, "identity")), req.Points)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
