package http

import (
	"net/http"
	"net/url"

	"ledger/internal/core"
	"ledger/internal/log"
)

// handleCreateUser answers 201 with the new user whatever the body encoding.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.createUser(w, r)
	if !ok {
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(toUserJSON(u)).Write(w)
}

// handleCreateUserForm sends the browser on to the new user's dashboard.
func (s *Server) handleCreateUserForm(w http.ResponseWriter, r *http.Request) {
	u, ok := s.createUser(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, "/dashboard/"+url.PathEscape(u.ID), http.StatusFound)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) (core.User, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return core.User{}, false
	}

	u, err := s.ledger.CreateUser(r.Context(), p.Get("username"))
	if err != nil {
		s.logFailure(r.Context(), "Failed to create user", err, log.OpCreate)
		FromError(err).Write(w)
		return core.User{}, false
	}
	s.appMetrics.usersCreated.Add(1)
	return u, true
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.ledger.ListUsers(r.Context())
	if err != nil {
		s.logFailure(r.Context(), "Failed to list users", err, log.OpList)
		FromError(err).Write(w)
		return
	}
	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, toUserJSON(u))
	}
	NewResponse().JSON(out).Write(w)
}
