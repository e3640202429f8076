// Package api provides the HTTP server for the ssohub single logout engine.
//
// # Overview
//
// The API exposes the logout orchestrator to identity provider front ends and
// operators. It is built on gorilla/mux and wraps every request with request
// ID propagation, structured access logging, panic recovery and Prometheus
// metrics labelled by route template.
//
// # Routes
//
//	POST /api/v1/sessions/{id}/logout   run the logout cascade, return every attempt
//	GET  /api/v1/sessions/{id}          show which services took part in a session
//	GET  /logout?session=ID&service=URL browser logout page with front-channel iframes
//
// Additional route groups, such as the audit log API, are mounted under
// /api/v1 with RegisterRoutes:
//
//	server := api.NewServer(orchestrator, registry, validator, logger, metrics)
//	server.RegisterRoutes(audit.NewHandlers(recorder))
//	http.ListenAndServe(":8080", server)
//
// # Errors
//
// A session that does not exist is not an error for logout: the cascade
// returns no attempts and the endpoint answers 200. Registry failures map to
// 503 Service Unavailable so load balancers can retry elsewhere.
//
// # Browser logout
//
// GET /logout reads the session ID from the session query parameter or the
// ticket-granting cookie, runs the cascade and renders a page that loads each
// pending front-channel logout URL in a hidden iframe. When a service URL is
// supplied and passes URL validation the page continues to it; with no
// front-channel work left the handler redirects immediately.
package api
