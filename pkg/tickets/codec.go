package tickets

import (
	"encoding/json"
	"time"
)

type serviceDocument struct {
	ID          string `json:"id"`
	OriginalURL string `json:"original_url,omitempty"`
	TicketID    string `json:"ticket_id"`
	LoggedOut   bool   `json:"logged_out,omitempty"`
}

type sessionDocument struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Principal string            `json:"principal,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
	Services  []serviceDocument `json:"services,omitempty"`
}

// MarshalJSON encodes the session with its services. An in-flight claim is
// stored as active: a claim never outlives the process that took it.
func (s *Session) MarshalJSON() ([]byte, error) {
	doc := sessionDocument{
		ID:        s.ID,
		Kind:      s.Kind,
		Principal: s.Principal,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	for _, svc := range s.Services() {
		doc.Services = append(doc.Services, serviceDocument{
			ID:          svc.ID,
			OriginalURL: svc.OriginalURL,
			TicketID:    svc.TicketID,
			LoggedOut:   svc.state.Load() == stateLoggedOut,
		})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a session written by MarshalJSON
func (s *Session) UnmarshalJSON(data []byte) error {
	var doc sessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ID = doc.ID
	s.Kind = doc.Kind
	s.Principal = doc.Principal
	s.CreatedAt = doc.CreatedAt
	s.ExpiresAt = doc.ExpiresAt
	s.services = make(map[string]*SessionService, len(doc.Services))
	for _, d := range doc.Services {
		svc := NewSessionService(d.ID, d.OriginalURL, d.TicketID)
		if d.LoggedOut {
			svc.state.Store(stateLoggedOut)
		}
		s.services[d.TicketID] = svc
	}
	return nil
}
