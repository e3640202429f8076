package logout

import (
	"net/url"
	"strings"
)

// URLValidator decides whether a string is an acceptable logout URL
type URLValidator interface {
	IsValid(rawURL string) bool
}

// URLValidatorFunc adapts a function to URLValidator
type URLValidatorFunc func(rawURL string) bool

// IsValid calls f
func (f URLValidatorFunc) IsValid(rawURL string) bool { return f(rawURL) }

// SchemeValidator accepts absolute URLs with a host and one of the allowed
// schemes.
type SchemeValidator struct {
	Schemes []string
}

// NewDefaultURLValidator accepts http and https URLs
func NewDefaultURLValidator() *SchemeValidator {
	return &SchemeValidator{Schemes: []string{"http", "https"}}
}

// IsValid reports whether rawURL parses as an absolute URL with an allowed
// scheme and a host.
func (v *SchemeValidator) IsValid(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.ContainsAny(rawURL, " \t\r\n") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || u.Opaque != "" {
		return false
	}
	for _, s := range v.Schemes {
		if strings.EqualFold(u.Scheme, s) {
			return true
		}
	}
	return false
}
