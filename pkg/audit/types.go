package audit

import (
	"time"

	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/services"
)

// Record is one stored logout attempt
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id"`

	// SessionHash is logout.SessionIDClaim of the session; raw session IDs are not stored
	SessionHash string `json:"session_hash"`
	Principal   string `json:"principal"`

	ServiceID         string              `json:"service_id"`
	TicketID          string              `json:"ticket_id,omitempty"`
	RegisteredService string              `json:"registered_service,omitempty"`
	Protocol          services.Protocol   `json:"protocol,omitempty"`
	LogoutURL         string              `json:"logout_url"`
	LogoutType        services.LogoutType `json:"logout_type"`
	Status            logout.Status       `json:"status"`
	Properties        map[string]string   `json:"properties,omitempty"`
}

// SearchFilter narrows Search results. Zero values match everything.
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	SessionHash string
	Principal   string
	ServiceID   string
	Statuses    []logout.Status

	Limit  int
	Offset int
}

// ExportFormat is the encoding of an export
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// Stats summarizes stored attempts
type Stats struct {
	Total      int64                       `json:"total"`
	ByStatus   map[logout.Status]int64     `json:"by_status"`
	ByProtocol map[services.Protocol]int64 `json:"by_protocol"`
	Sessions   int64                       `json:"sessions"`
	TimeRange  *TimeRange                  `json:"time_range,omitempty"`
}

// TimeRange bounds Stats
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy controls Cleanup
type RetentionPolicy struct {
	RetentionDays int
}

// DefaultRetentionPolicy keeps 90 days
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
