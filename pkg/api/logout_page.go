package api

import (
	"html/template"
	"net/http"

	"github.com/platinummonkey/ssohub/pkg/httputil"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
)

// SessionCookieName is the ticket-granting cookie consulted when no session
// query parameter is given
const SessionCookieName = "TGC"

var logoutPageTemplate = template.Must(template.New("logout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Logged out</title>
{{- if .Redirect}}
<meta http-equiv="refresh" content="{{.RefreshSeconds}};url={{.Redirect}}">
{{- end}}
</head>
<body>
<h1>You have been logged out</h1>
{{- if .FrontChannel}}
<p>Signing you out of {{len .FrontChannel}} application(s).</p>
{{- range .FrontChannel}}
<iframe src="{{.URL}}" title="{{.Service}}" style="display:none" width="0" height="0"></iframe>
{{- end}}
{{- end}}
{{- if .Redirect}}
<p><a href="{{.Redirect}}">Continue</a></p>
{{- end}}
</body>
</html>
`))

type frontChannelLink struct {
	Service string
	URL     string
}

type logoutPage struct {
	FrontChannel   []frontChannelLink
	Redirect       string
	RefreshSeconds int
}

// browserLogout handles GET /logout
func (s *Server) browserLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := httputil.QueryString(r, "session", "")
	if sessionID == "" {
		if c, err := r.Cookie(SessionCookieName); err == nil {
			sessionID = c.Value
		}
	}

	var contexts []*logout.RequestContext
	if sessionID != "" {
		var err error
		contexts, err = s.executor.Execute(r.Context(), sessionID, &logout.ExecutionRequest{HTTPRequest: r, HTTPResponse: w})
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("logout cascade failed")
			http.Error(w, "logout is temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
	})

	page := logoutPage{FrontChannel: frontChannelLinks(contexts)}
	if target := r.URL.Query().Get("service"); target != "" {
		if s.validator.IsValid(target) {
			page.Redirect = target
		} else {
			observability.FromContext(r.Context()).WithField("service", target).Warn("ignoring invalid logout redirect")
		}
	}

	if page.Redirect != "" && len(page.FrontChannel) == 0 {
		http.Redirect(w, r, page.Redirect, http.StatusFound)
		return
	}
	if len(page.FrontChannel) > 0 {
		// Give the iframes a moment to load before leaving the page.
		page.RefreshSeconds = 2
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := logoutPageTemplate.Execute(w, page); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to render logout page")
	}
}

// frontChannelLinks returns the front-channel URLs the browser still has to
// visit
func frontChannelLinks(contexts []*logout.RequestContext) []frontChannelLink {
	var links []frontChannelLink
	for _, c := range contexts {
		if c.LogoutURL.Type != services.LogoutTypeFrontChannel || c.Status() != logout.StatusNotAttempted {
			continue
		}
		name := ""
		if c.RegisteredService != nil {
			name = c.RegisteredService.Name
		}
		links = append(links, frontChannelLink{Service: name, URL: c.LogoutURL.URL})
	}
	return links
}
