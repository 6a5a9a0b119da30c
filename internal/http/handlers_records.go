package http

import (
	"net/http"
	"net/url"

	"ledger/internal/log"
)

// redirectToDashboard sends browser form posts back to the user's page.
func redirectToDashboard(w http.ResponseWriter, r *http.Request, userID string) {
	http.Redirect(w, r, "/dashboard/"+url.PathEscape(userID), http.StatusFound)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	userID := p.Get("user_id")
	in, err := s.ledger.AddIncome(r.Context(), userID, p.Get("amount"), p.Get("source"), p.Get("date"))
	if err != nil {
		s.logFailure(r.Context(), "Failed to add income", err, log.OpCreate)
		FromError(err).Write(w)
		return
	}
	s.appMetrics.incomeCreated.Add(1)
	log.RecordCreated(r.Context(), "income", in.UserID, in.ID, in.Amount.String(), in.Source)

	if !wantsJSON(r, p) {
		redirectToDashboard(w, r, in.UserID)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(toIncomeJSON(in)).Write(w)
}

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.ListIncomeFor(r.Context(), userIDParam(r))
	if err != nil {
		s.logFailure(r.Context(), "Failed to list income", err, log.OpList)
		FromError(err).Write(w)
		return
	}
	out := make([]incomeJSON, 0, len(list))
	for _, in := range list {
		out = append(out, toIncomeJSON(in))
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.RemoveIncome(r.Context(), sanitizeInput(r.URL.Query().Get("income_id"))); err != nil {
		s.logFailure(r.Context(), "Failed to delete income", err, log.OpDelete)
		FromError(err).Write(w)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	userID := p.Get("user_id")
	e, err := s.ledger.AddExpense(r.Context(), userID, p.Get("amount"), p.Get("category"), p.Get("date"))
	if err != nil {
		s.logFailure(r.Context(), "Failed to add expense", err, log.OpCreate)
		FromError(err).Write(w)
		return
	}
	s.appMetrics.expensesCreated.Add(1)
	log.RecordCreated(r.Context(), "expense", e.UserID, e.ID, e.Amount.String(), e.Category)

	if !wantsJSON(r, p) {
		redirectToDashboard(w, r, e.UserID)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(toExpenseJSON(e)).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.ListExpenseFor(r.Context(), userIDParam(r))
	if err != nil {
		s.logFailure(r.Context(), "Failed to list expenses", err, log.OpList)
		FromError(err).Write(w)
		return
	}
	out := make([]expenseJSON, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseJSON(e))
	}
	NewResponse().JSON(out).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.RemoveExpense(r.Context(), sanitizeInput(r.URL.Query().Get("expense_id"))); err != nil {
		s.logFailure(r.Context(), "Failed to delete expense", err, log.OpDelete)
		FromError(err).Write(w)
		return
	}
	NoContent().Write(w)
}
