package http

import (
	"bytes"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/log"
)

type dashboardView struct {
	User     core.User
	Today    string
	Summary  core.Summary
	Budgets  []core.BudgetStatus
	Income   []core.Income
	Expenses []core.Expense
}

// render executes name into a buffer so a failing template never leaves a
// half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		tl := log.FromContext(r.Context()).WithComponent(log.ComponentTemplate)
		tl.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			"error_type", log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		tl := log.FromContext(r.Context()).WithComponent(log.ComponentTemplate)
		tl.ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", name)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	users, err := s.ledger.ListUsers(r.Context())
	if err != nil {
		s.logFailure(r.Context(), "Failed to list users", err, log.OpList)
		http.Error(w, "failed to load users", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "index.html", struct{ Users []core.User }{Users: users})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDParam(r)

	user, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || core.IsValidation(err) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.logFailure(ctx, "Failed to load user", err, log.OpRead)
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}

	win, err := ParseWindow(r.URL.Query(), s.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view := dashboardView{User: user, Today: core.DateOf(s.now()).String()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Summary, err = s.summary.Summarize(gctx, user.ID, win)
		return err
	})
	g.Go(func() (err error) {
		view.Budgets, err = s.summary.BudgetStatus(gctx, user.ID, s.now())
		return err
	})
	g.Go(func() (err error) {
		view.Income, err = s.ledger.ListIncomeFor(gctx, user.ID)
		return err
	})
	g.Go(func() (err error) {
		view.Expenses, err = s.ledger.ListExpenseFor(gctx, user.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logFailure(ctx, "Failed to load dashboard", err, log.OpRead)
		http.Error(w, "failed to load dashboard", StatusForError(err))
		return
	}

	s.render(w, r, http.StatusOK, "dashboard.html", view)
}
