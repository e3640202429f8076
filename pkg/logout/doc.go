// Package logout is the single logout engine.
//
// When an SSO session ends, the Orchestrator looks the session up, asks the
// ChainingDispatcher which dispatchers support each participating service and
// lets them resolve logout URLs, build protocol messages and deliver the
// back-channel ones. Front-channel URLs come back NOT_ATTEMPTED for the
// browser to visit. The session is deleted whatever the outcome.
//
// A service that cannot be reached never blocks the others: per-service
// failures, including panics, end up as FAILURE statuses or logged errors.
// Execute returns an error only when the session registry is unavailable.
package logout
