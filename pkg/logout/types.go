package logout

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/platinummonkey/ssohub/pkg/services"
	"github.com/platinummonkey/ssohub/pkg/tickets"
)

// LogoutURL is a resolved logout endpoint for one relying party
type LogoutURL struct {
	URL  string              `json:"url"`
	Type services.LogoutType `json:"type"`
}

// Status is the outcome of one logout attempt
type Status string

const (
	StatusNotAttempted Status = "NOT_ATTEMPTED"
	StatusSuccess      Status = "SUCCESS"
	StatusFailure      Status = "FAILURE"
)

// Well-known RequestContext property keys
const (
	PropertyError      = "error"
	PropertyMessageID  = "message_id"
	PropertyHTTPStatus = "http_status"
	PropertyDispatcher = "dispatcher"
	PropertyAsync      = "async"
)

// RequestContext is one per-URL logout attempt for a participating service
type RequestContext struct {
	SessionID         string
	Service           *tickets.SessionService
	RegisteredService *services.RegisteredService
	LogoutURL         LogoutURL

	mu         sync.RWMutex
	status     Status
	properties map[string]string
}

// NewRequestContext creates a NOT_ATTEMPTED context
func NewRequestContext(sessionID string, svc *tickets.SessionService, rs *services.RegisteredService, u LogoutURL) *RequestContext {
	return &RequestContext{
		SessionID:         sessionID,
		Service:           svc,
		RegisteredService: rs,
		LogoutURL:         u,
		status:            StatusNotAttempted,
		properties:        make(map[string]string),
	}
}

// Status returns the current status
func (c *RequestContext) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus moves a back-channel context from NOT_ATTEMPTED to a terminal
// status. It returns false, leaving the context unchanged, when the context is
// already terminal or is not back-channel.
func (c *RequestContext) SetStatus(s Status) bool {
	if s == StatusNotAttempted || c.LogoutURL.Type != services.LogoutTypeBackChannel {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusNotAttempted {
		return false
	}
	c.status = s
	return true
}

// SetProperty records a protocol or delivery detail
func (c *RequestContext) SetProperty(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[key] = value
}

// Property returns a recorded detail
func (c *RequestContext) Property(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.properties[key]
	return v, ok
}

// Properties returns a copy of every recorded detail
func (c *RequestContext) Properties() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.properties))
	for k, v := range c.properties {
		out[k] = v
	}
	return out
}

type requestContextJSON struct {
	SessionHash string            `json:"session_hash"`
	ServiceID   string            `json:"service_id"`
	TicketID    string            `json:"ticket_id,omitempty"`
	Service     string            `json:"registered_service,omitempty"`
	Protocol    services.Protocol `json:"protocol,omitempty"`
	LogoutURL   LogoutURL         `json:"logout_url"`
	Status      Status            `json:"status"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// MarshalJSON renders the context for API responses and events. The session
// appears as its SessionIDClaim hash, never as the ticket itself.
func (c *RequestContext) MarshalJSON() ([]byte, error) {
	out := requestContextJSON{
		SessionHash: SessionIDClaim(c.SessionID),
		LogoutURL:   c.LogoutURL,
		Status:      c.Status(),
		Properties:  c.Properties(),
	}
	if c.Service != nil {
		out.ServiceID = c.Service.ID
		out.TicketID = c.Service.TicketID
	}
	if c.RegisteredService != nil {
		out.Service = c.RegisteredService.Name
		out.Protocol = c.RegisteredService.Protocol
	}
	return json.Marshal(out)
}

// ExecutionRequest carries the inbound transport of the logout trigger, if
// any. The engine passes it through untouched.
type ExecutionRequest struct {
	HTTPRequest  *http.Request
	HTTPResponse http.ResponseWriter
}

// Summarize counts contexts by status
func Summarize(contexts []*RequestContext) map[Status]int {
	out := make(map[Status]int, 3)
	for _, c := range contexts {
		out[c.Status()]++
	}
	return out
}
