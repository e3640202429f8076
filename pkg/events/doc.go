// Package events publishes notifications about completed single logouts.
//
// The orchestrator publishes one EventSessionTerminated per execution. A
// Publisher must return quickly: WebhookPublisher signs the JSON body with
// HMAC-SHA256 per subscriber and delivers it in the background, recording
// each attempt in a DeliveryLogStore and redelivering failures with
// exponential backoff from RunRetries.
package events
