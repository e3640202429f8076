// Package audit keeps a queryable history of single logout attempts.
//
// # Overview
//
// DBRecorder is an events.Publisher. For every session.terminated event it
// stores one slo_audit_logs row per logout attempt: the relying party, the
// URL, the logout type, the final status and the delivery properties. Rows
// carry a hash of the session ID, never the ID itself.
//
// # Usage Example
//
//	recorder, err := audit.NewDBRecorder(ctx, db, logger)
//	publisher := events.MultiPublisher{webhooks, recorder}
//
// Search failed deliveries for one user:
//
//	records, err := recorder.Search(ctx, audit.SearchFilter{
//		Principal: "alice",
//		Statuses:  []logout.Status{logout.StatusFailure},
//	})
//
// # Retention Policy
//
// Default: 90 days. Export: JSON, CSV, NDJSON formats.
package audit
