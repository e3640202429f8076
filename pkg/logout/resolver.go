package logout

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
	"github.com/platinummonkey/ssohub/pkg/tickets"
)

// URLResolver produces the logout URLs for one participating service
type URLResolver interface {
	Name() string
	// Order sorts resolvers in a chain, lowest first
	Order() int
	Supports(rs *services.RegisteredService, svc *tickets.SessionService) bool
	IsServiceAuthorized(rs *services.RegisteredService, svc *tickets.SessionService) bool
	Resolve(ctx context.Context, rs *services.RegisteredService, svc *tickets.SessionService) []LogoutURL
}

// DefaultURLResolver splits the registered logout URL on commas, falling back
// to the URL the service was originally accessed with.
type DefaultURLResolver struct {
	validator URLValidator
	logger    *observability.Logger
}

// NewDefaultURLResolver creates the comma-splitting resolver
func NewDefaultURLResolver(validator URLValidator, logger *observability.Logger) *DefaultURLResolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &DefaultURLResolver{validator: validator, logger: logger}
}

func (r *DefaultURLResolver) Name() string { return "default" }
func (r *DefaultURLResolver) Order() int   { return 0 }

// Supports accepts every service with a registration
func (r *DefaultURLResolver) Supports(rs *services.RegisteredService, svc *tickets.SessionService) bool {
	return rs != nil && svc != nil
}

// IsServiceAuthorized defers to the registration's access strategy
func (r *DefaultURLResolver) IsServiceAuthorized(rs *services.RegisteredService, svc *tickets.SessionService) bool {
	return rs != nil && rs.Access.IsServiceAccessAllowed()
}

// Resolve returns one LogoutURL per valid configured entry, or the original
// URL when none is configured. Invalid entries are skipped.
func (r *DefaultURLResolver) Resolve(ctx context.Context, rs *services.RegisteredService, svc *tickets.SessionService) []LogoutURL {
	var out []LogoutURL

	if strings.TrimSpace(rs.LogoutURL) != "" {
		for _, entry := range strings.Split(rs.LogoutURL, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if !r.validator.IsValid(entry) {
				r.logger.WithField("service", rs.Name).WithField("url", entry).
					WithError(ErrInvalidLogoutURL).Debug("skipping logout url")
				continue
			}
			out = append(out, LogoutURL{URL: entry, Type: rs.LogoutType})
		}
		return out
	}

	if r.validator.IsValid(svc.OriginalURL) {
		return []LogoutURL{{URL: strings.TrimSpace(svc.OriginalURL), Type: rs.LogoutType}}
	}
	r.logger.WithField("service", rs.Name).WithField("url", svc.OriginalURL).
		WithError(ErrInvalidLogoutURL).Debug("no usable logout url")
	return nil
}

// ChainingURLResolver unions the results of every supporting resolver
type ChainingURLResolver struct {
	resolvers []URLResolver
}

// NewChainingURLResolver orders resolvers by Order(), keeping the given
// order among equals.
func NewChainingURLResolver(resolvers ...URLResolver) *ChainingURLResolver {
	sorted := append([]URLResolver(nil), resolvers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })
	return &ChainingURLResolver{resolvers: sorted}
}

func (c *ChainingURLResolver) Name() string {
	names := make([]string, len(c.resolvers))
	for i, r := range c.resolvers {
		names[i] = r.Name()
	}
	return fmt.Sprintf("chain(%s)", strings.Join(names, ","))
}

func (c *ChainingURLResolver) Order() int { return 0 }

// Supports reports whether any resolver supports the service
func (c *ChainingURLResolver) Supports(rs *services.RegisteredService, svc *tickets.SessionService) bool {
	for _, r := range c.resolvers {
		if r.Supports(rs, svc) {
			return true
		}
	}
	return false
}

// IsServiceAuthorized is true when any supporting resolver authorizes the service
func (c *ChainingURLResolver) IsServiceAuthorized(rs *services.RegisteredService, svc *tickets.SessionService) bool {
	for _, r := range c.resolvers {
		if r.Supports(rs, svc) && r.IsServiceAuthorized(rs, svc) {
			return true
		}
	}
	return false
}

// Resolve concatenates the URLs of every supporting resolver, dropping
// duplicates.
func (c *ChainingURLResolver) Resolve(ctx context.Context, rs *services.RegisteredService, svc *tickets.SessionService) []LogoutURL {
	var out []LogoutURL
	seen := make(map[LogoutURL]struct{})
	for _, r := range c.resolvers {
		if !r.Supports(rs, svc) {
			continue
		}
		for _, u := range r.Resolve(ctx, rs, svc) {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
