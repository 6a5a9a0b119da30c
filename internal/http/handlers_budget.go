package http

import (
	"net/http"

	"ledger/internal/log"
)

// handleUpsertBudget sets the limit for (user, category, period). JSON callers
// get the stored budget back; form posts return to the dashboard.
func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	b, err := s.ledger.SetBudget(r.Context(), p.Get("user_id"), p.Get("category"), p.Get("amount"), p.Get("period"))
	if err != nil {
		s.logFailure(r.Context(), "Failed to set budget", err, log.OpUpdate)
		FromError(err).Write(w)
		return
	}
	s.appMetrics.budgetsUpserted.Add(1)

	if !wantsJSON(r, p) {
		redirectToDashboard(w, r, b.UserID)
		return
	}
	NewResponse().JSON(toBudgetJSON(b)).Write(w)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.ledger.ListBudgetsFor(r.Context(), userIDParam(r))
	if err != nil {
		s.logFailure(r.Context(), "Failed to list budgets", err, log.OpList)
		FromError(err).Write(w)
		return
	}
	out := make([]budgetJSON, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetJSON(b))
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.RemoveBudget(r.Context(), sanitizeInput(r.URL.Query().Get("budget_id"))); err != nil {
		s.logFailure(r.Context(), "Failed to delete budget", err, log.OpDelete)
		FromError(err).Write(w)
		return
	}
	NoContent().Write(w)
}
