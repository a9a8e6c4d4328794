package api

import (
	"net/http"

	"github.com/tutu-network/cityledger/internal/domain"
)

type registerAgentRequest struct {
	Name           string `json:"name"`
	Zone           string `json:"zone"`
	Specialization string `json:"specialization"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.svc.Agents.RegisterAgent(r.Context(), req.Name, req.Zone, req.Specialization)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.svc.Agents.ListAgents(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	agent, err := s.svc.Agents.GetAgent(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.svc.Agents.TotalStats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	decisions, err := s.svc.Agents.Decisions(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

type decisionRequest struct {
	DecisionType string `json:"decision_type"`
	Parameters   string `json:"parameters"`
	ImpactScore  uint32 `json:"impact_score"`
}

func (s *Server) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.Agents.RecordDecision(r.Context(), id, req.DecisionType, req.Parameters, req.ImpactScore); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetAgent(w, r)
}

type performanceRequest struct {
	EnergySaved   uint64 `json:"energy_saved"`
	CostReduction uint64 `json:"cost_reduction"`
}

func (s *Server) handleUpdatePerformance(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req performanceRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.Agents.UpdatePerformance(r.Context(), id, req.EnergySaved, req.CostReduction); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetAgent(w, r)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := domain.ParseAgentStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	if err := s.svc.Agents.SetStatus(r.Context(), id, status); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetAgent(w, r)
}
