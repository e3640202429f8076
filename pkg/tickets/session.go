package tickets

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSessionNotFound is returned by Registry.Lookup when no session has the given ID
var ErrSessionNotFound = errors.New("session not found")

// Kind classifies a session ticket
type Kind string

const (
	KindTicketGranting Kind = "TGT"
	KindProxyGranting  Kind = "PGT"
	KindOther          Kind = "OTHER"
)

const (
	stateActive int32 = iota
	stateInFlight
	stateLoggedOut
)

// SessionService is one relying-party participation in an SSO session
type SessionService struct {
	// ID is the service identifier the ticket was issued for
	ID string
	// OriginalURL is the URL the user was redirected to at login
	OriginalURL string
	// TicketID is the service ticket issued to ID
	TicketID string

	state atomic.Int32
}

// NewSessionService creates an active SessionService
func NewSessionService(id, originalURL, ticketID string) *SessionService {
	return &SessionService{ID: id, OriginalURL: originalURL, TicketID: ticketID}
}

// AlreadyLoggedOut reports whether the service has been notified or a
// notification is currently in flight.
func (s *SessionService) AlreadyLoggedOut() bool {
	return s.state.Load() != stateActive
}

// TryClaim reserves the service for a back-channel delivery.
// Only one caller wins until the claim is released.
func (s *SessionService) TryClaim() bool {
	return s.state.CompareAndSwap(stateActive, stateInFlight)
}

// Release returns a claimed service to the active state after a failed delivery
func (s *SessionService) Release() {
	s.state.CompareAndSwap(stateInFlight, stateActive)
}

// MarkLoggedOut records that the service has been notified. It returns true
// only for the caller that performed the transition.
func (s *SessionService) MarkLoggedOut() bool {
	for {
		cur := s.state.Load()
		if cur == stateLoggedOut {
			return false
		}
		if s.state.CompareAndSwap(cur, stateLoggedOut) {
			return true
		}
	}
}

// Session is an SSO session and every service that participated in it
type Session struct {
	ID        string
	Kind      Kind
	Principal string
	CreatedAt time.Time
	ExpiresAt time.Time

	mu       sync.RWMutex
	services map[string]*SessionService
}

// NewSession creates a session with no participating services
func NewSession(id string, kind Kind, principal string, createdAt, expiresAt time.Time) *Session {
	return &Session{
		ID:        id,
		Kind:      kind,
		Principal: principal,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		services:  make(map[string]*SessionService),
	}
}

// IsSessionGranting reports whether logging this session out should cascade
// to its services. Only ticket-granting tickets qualify.
func (s *Session) IsSessionGranting() bool {
	return s.Kind == KindTicketGranting
}

// Expired reports whether the session has passed its expiry at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Grant records that svc was issued a ticket under this session, replacing
// any previous record with the same ticket ID.
func (s *Session) Grant(svc *SessionService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.services == nil {
		s.services = make(map[string]*SessionService)
	}
	s.services[svc.TicketID] = svc
}

// Service returns the record for a service ticket
func (s *Session) Service(ticketID string) (*SessionService, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[ticketID]
	return svc, ok
}

// Services returns a snapshot of the participating services ordered by
// ticket ID. Services granted after the call are not included.
func (s *Session) Services() []*SessionService {
	s.mu.RLock()
	out := make([]*SessionService, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out
}

// Redact shortens a session or ticket ID for logs. Session IDs are bearer
// credentials and are never logged in full.
func Redact(id string) string {
	const keep = 12
	if len(id) <= keep {
		return id
	}
	return id[:keep] + "..."
}
