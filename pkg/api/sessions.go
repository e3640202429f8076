package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/platinummonkey/ssohub/pkg/httputil"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/tickets"
)

// SessionServiceView is one participating service in a session summary
type SessionServiceView struct {
	ServiceID   string `json:"service_id"`
	TicketID    string `json:"ticket_id"`
	OriginalURL string `json:"original_url,omitempty"`
	LoggedOut   bool   `json:"logged_out"`
}

// SessionView summarizes a session and its participants
type SessionView struct {
	Kind      tickets.Kind         `json:"kind"`
	Principal string               `json:"principal"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	Services  []SessionServiceView `json:"services"`
}

// LogoutResponse is the result of a logout cascade
type LogoutResponse struct {
	Requests []*logout.RequestContext `json:"requests"`
	Summary  map[logout.Status]int    `json:"summary"`
}

// getSession handles GET /api/v1/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.RequirePathParam(w, r, "id")
	if !ok {
		return
	}

	session, err := s.registry.Lookup(r.Context(), id)
	if errors.Is(err, tickets.ErrSessionNotFound) {
		httputil.WriteNotFound(w, r, "session not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to look up session")
		httputil.WriteUnavailable(w, r, "session registry unavailable")
		return
	}

	_ = httputil.WriteOK(w, newSessionView(session))
}

// logoutSession handles POST /api/v1/sessions/{id}/logout
func (s *Server) logoutSession(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.RequirePathParam(w, r, "id")
	if !ok {
		return
	}

	contexts, err := s.executor.Execute(r.Context(), id, &logout.ExecutionRequest{HTTPRequest: r, HTTPResponse: w})
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("logout cascade failed")
		httputil.WriteUnavailable(w, r, err.Error())
		return
	}

	if contexts == nil {
		contexts = []*logout.RequestContext{}
	}
	_ = httputil.WriteOK(w, LogoutResponse{
		Requests: contexts,
		Summary:  logout.Summarize(contexts),
	})
}

func newSessionView(session *tickets.Session) SessionView {
	view := SessionView{
		Kind:      session.Kind,
		Principal: session.Principal,
		CreatedAt: session.CreatedAt,
		Services:  []SessionServiceView{},
	}
	if !session.ExpiresAt.IsZero() {
		expires := session.ExpiresAt
		view.ExpiresAt = &expires
	}
	for _, svc := range session.Services() {
		view.Services = append(view.Services, SessionServiceView{
			ServiceID:   svc.ID,
			TicketID:    svc.TicketID,
			OriginalURL: svc.OriginalURL,
			LoggedOut:   svc.AlreadyLoggedOut(),
		})
	}
	return view
}
