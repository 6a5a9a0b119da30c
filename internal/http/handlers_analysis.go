package http

import (
	"net/http"

	"ledger/internal/log"
)

// handleSummary serves both /api/analysis/summary/{user_id} and
// /api/analysis/summary?user_id=.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		BadRequestError("user_id is required").Write(w)
		return
	}
	win, err := ParseWindow(r.URL.Query(), s.now())
	if err != nil {
		FromError(err).Write(w)
		return
	}

	sum, err := s.summary.Summarize(r.Context(), userID, win)
	if err != nil {
		s.logFailure(r.Context(), "Failed to summarize", err, log.OpSummary)
		FromError(err).Write(w)
		return
	}
	NewResponse().JSON(toSummaryJSON(userID, sum)).Write(w)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)
	if userID == "" {
		BadRequestError("user_id is required").Write(w)
		return
	}

	statuses, err := s.summary.BudgetStatus(r.Context(), userID, s.now())
	if err != nil {
		s.logFailure(r.Context(), "Failed to compute budget status", err, log.OpSummary)
		FromError(err).Write(w)
		return
	}
	out := make([]budgetStatusJSON, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, toBudgetStatusJSON(st))
	}
	NewResponse().JSON(out).Write(w)
}
