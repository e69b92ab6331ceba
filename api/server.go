package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sleuth/app"
	"sleuth/domain/investigation"
	"sleuth/internal/errors"
	"sleuth/internal/logging"
)

// Server exposes the investigation API
type Server struct {
	router  *chi.Mux
	service *app.InvestigationService
	log     *logging.Logger
}

// NewServer creates the HTTP server and mounts its routes
func NewServer(service *app.InvestigationService, log *logging.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
		log:     log,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
	})
}

// Router returns the mounted handler
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{
			Error: ErrorDetail{Category: errors.CodeInvalidInput, Message: "invalid JSON body"},
		})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorBody{
			Error: ErrorDetail{Category: errors.CodeInvalidInput, Message: "question is required"},
		})
		return
	}

	result, err := s.service.Investigate(r.Context(), req.Question, req.TimeWindow)
	if err != nil {
		inv := result.Investigation
		status := http.StatusInternalServerError
		if inv.FailCode == errors.CodeFatalPrecondition {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, QueryResponse{
			InvestigationID: inv.ID.String(),
			Status:          statusFor(inv.State),
			StepsTaken:      inv.StepsUsed,
			Error:           &ErrorDetail{Category: inv.FailCode, Message: inv.FailMsg},
		})
		return
	}

	writeJSON(w, http.StatusOK, buildResponse(result))
}

func buildResponse(result *app.Result) QueryResponse {
	inv := result.Investigation
	resp := QueryResponse{
		InvestigationID: inv.ID.String(),
		Status:          statusFor(inv.State),
		StepsTaken:      inv.StepsUsed,
	}

	if inv.Answer != nil {
		resp.RootCause = inv.Answer.RootCause
		resp.Explanation = inv.Answer.Explanation
		resp.ExplanationHTML = inv.Answer.ExplanationHTML
		resp.Confidence = inv.Answer.Confidence
		resp.ConfidenceLevel = string(inv.Answer.ConfidenceLevel)
		resp.LowConfidence = inv.Answer.LowConfidence
		resp.Insufficient = inv.Answer.Insufficient
	}

	for _, f := range result.Findings {
		resp.Evidence = append(resp.Evidence, EvidenceItem{
			Kind:         string(f.Kind),
			Significance: string(f.Significance),
			Service:      f.Service.String(),
			Summary:      f.Summary,
		})
	}

	for _, ranked := range result.Ranked {
		item := HypothesisItem{Confidence: ranked.Score, ConfidenceLevel: string(ranked.Level)}
		for _, h := range result.Hypotheses {
			if h.ID == ranked.HypothesisID {
				item.Description = h.Description
				item.Status = string(h.Status)
				break
			}
		}
		resp.Hypotheses = append(resp.Hypotheses, item)
	}
	return resp
}

func statusFor(state investigation.State) string {
	switch state {
	case investigation.StateCompleted:
		return "completed"
	case investigation.StateTimedOut:
		return "timed_out"
	case investigation.StateFailed:
		return "failed"
	}
	return "in_progress"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
