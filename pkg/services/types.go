package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrServiceNotFound is returned by Directory.FindByService when no
// registered service matches the service identifier.
var ErrServiceNotFound = errors.New("registered service not found")

// Protocol is the protocol family a relying party speaks
type Protocol string

const (
	ProtocolCAS  Protocol = "CAS"
	ProtocolSAML Protocol = "SAML"
	ProtocolOIDC Protocol = "OIDC"
)

// LogoutType selects how a relying party is told about logout
type LogoutType string

const (
	LogoutTypeNone         LogoutType = "NONE"
	LogoutTypeBackChannel  LogoutType = "BACK_CHANNEL"
	LogoutTypeFrontChannel LogoutType = "FRONT_CHANNEL"
)

// ParseLogoutType parses a logout type name, case-insensitively.
// An empty string is BACK_CHANNEL.
func ParseLogoutType(s string) (LogoutType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(LogoutTypeBackChannel):
		return LogoutTypeBackChannel, nil
	case string(LogoutTypeFrontChannel):
		return LogoutTypeFrontChannel, nil
	case string(LogoutTypeNone):
		return LogoutTypeNone, nil
	default:
		return "", fmt.Errorf("unknown logout type %q", s)
	}
}

// AccessStrategy decides whether a registered service may take part in SSO
type AccessStrategy struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// NotBefore and NotAfter bound the window in which access is allowed
	NotBefore *time.Time `yaml:"not_before,omitempty" json:"not_before,omitempty"`
	NotAfter  *time.Time `yaml:"not_after,omitempty" json:"not_after,omitempty"`
}

// IsServiceAccessAllowed reports whether the service is currently allowed
func (a AccessStrategy) IsServiceAccessAllowed() bool {
	return a.IsServiceAccessAllowedAt(time.Now())
}

// IsServiceAccessAllowedAt reports whether the service is allowed at now
func (a AccessStrategy) IsServiceAccessAllowedAt(now time.Time) bool {
	if !a.Enabled {
		return false
	}
	if a.NotBefore != nil && now.Before(*a.NotBefore) {
		return false
	}
	if a.NotAfter != nil && now.After(*a.NotAfter) {
		return false
	}
	return true
}

// RegisteredService is a relying party configured in the service directory
type RegisteredService struct {
	ID              int64          `yaml:"id" json:"id"`
	Name            string         `yaml:"name" json:"name"`
	ServiceID       string         `yaml:"service_id" json:"service_id"`
	Protocol        Protocol       `yaml:"protocol" json:"protocol"`
	LogoutURL       string         `yaml:"logout_url,omitempty" json:"logout_url,omitempty"`
	LogoutType      LogoutType     `yaml:"logout_type" json:"logout_type"`
	Access          AccessStrategy `yaml:"access" json:"access"`
	ClientID        string         `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	EvaluationOrder int            `yaml:"evaluation_order" json:"evaluation_order"`

	pattern *regexp.Regexp
}

// Compile validates the service and compiles its ServiceID pattern.
// Missing protocol defaults to CAS and missing logout type to BACK_CHANNEL.
func (r *RegisteredService) Compile() error {
	if r.ServiceID == "" {
		return fmt.Errorf("service %q: service_id is required", r.Name)
	}

	pattern, err := regexp.Compile(`^(?:` + r.ServiceID + `)$`)
	if err != nil {
		return fmt.Errorf("service %q: invalid service_id pattern: %w", r.Name, err)
	}
	r.pattern = pattern

	if r.Protocol == "" {
		r.Protocol = ProtocolCAS
	}
	switch r.Protocol {
	case ProtocolCAS, ProtocolSAML, ProtocolOIDC:
	default:
		return fmt.Errorf("service %q: unknown protocol %q", r.Name, r.Protocol)
	}

	lt, err := ParseLogoutType(string(r.LogoutType))
	if err != nil {
		return fmt.Errorf("service %q: %w", r.Name, err)
	}
	r.LogoutType = lt

	if r.Protocol == ProtocolOIDC && r.ClientID == "" {
		return fmt.Errorf("service %q: OIDC services require client_id", r.Name)
	}
	return nil
}

// Matches reports whether serviceID belongs to this registration.
// The pattern is anchored to the whole identifier.
func (r *RegisteredService) Matches(serviceID string) bool {
	if r.pattern == nil {
		if err := r.Compile(); err != nil {
			return false
		}
	}
	return r.pattern.MatchString(serviceID)
}

// Directory finds the registered service for a service identifier
type Directory interface {
	FindByService(ctx context.Context, serviceID string) (*RegisteredService, error)
}
