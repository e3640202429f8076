// Package httputil provides HTTP handler utilities: JSON responses, path and
// query parsing, and the request ID, logging and recovery middleware every
// ssohub route runs behind.
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware(logger, routeTemplate),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
