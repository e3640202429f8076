package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/platinummonkey/ssohub/pkg/events"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
)

const defaultWriteTimeout = 5 * time.Second

// Store queries recorded logout attempts
type Store interface {
	Search(ctx context.Context, filter SearchFilter) ([]*Record, error)
	Get(ctx context.Context, id int64) (*Record, error)
	Stats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error)
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// DBRecorder stores one row per logout attempt in PostgreSQL. It receives
// session terminations as an events.Publisher.
type DBRecorder struct {
	db      *sql.DB
	logger  *observability.Logger
	timeout time.Duration
}

// NewDBRecorder creates the slo_audit_logs table if needed
func NewDBRecorder(ctx context.Context, db *sql.DB, logger *observability.Logger) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	r := &DBRecorder{db: db, logger: logger.WithField("component", "audit"), timeout: defaultWriteTimeout}
	if err := r.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure slo_audit_logs table: %w", err)
	}
	return r, nil
}

func (r *DBRecorder) ensureTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS slo_audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_id VARCHAR(64) NOT NULL,
		session_hash VARCHAR(64) NOT NULL,
		principal VARCHAR(255) NOT NULL,
		service_id TEXT NOT NULL,
		ticket_id VARCHAR(255),
		registered_service VARCHAR(255),
		protocol VARCHAR(16),
		logout_url TEXT NOT NULL,
		logout_type VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		properties JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_slo_audit_logs_timestamp ON slo_audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_slo_audit_logs_session ON slo_audit_logs(session_hash);
	CREATE INDEX IF NOT EXISTS idx_slo_audit_logs_principal ON slo_audit_logs(principal);
	CREATE INDEX IF NOT EXISTS idx_slo_audit_logs_status ON slo_audit_logs(status);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Publish records every attempt of a session.terminated event in one
// transaction. Other event types are ignored.
func (r *DBRecorder) Publish(ctx context.Context, event events.Event) error {
	if event.Type != events.EventSessionTerminated {
		return nil
	}
	payload, ok := event.Data.(*logout.SessionTerminated)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", event.Type, event.Data)
	}
	if len(payload.Results) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hash := payload.SessionHash
	for _, rc := range payload.Results {
		rec := recordFor(event, hash, payload.Principal, rc)
		props, err := json.Marshal(rec.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal properties: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO slo_audit_logs (
				timestamp, event_id, session_hash, principal,
				service_id, ticket_id, registered_service, protocol,
				logout_url, logout_type, status, properties
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.Timestamp, rec.EventID, rec.SessionHash, rec.Principal,
			rec.ServiceID, rec.TicketID, rec.RegisteredService, string(rec.Protocol),
			rec.LogoutURL, string(rec.LogoutType), string(rec.Status), props,
		)
		if err != nil {
			return fmt.Errorf("failed to insert audit log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit logs: %w", err)
	}
	r.logger.WithField("event_id", event.ID).WithField("records", len(payload.Results)).Debug("logout attempts recorded")
	return nil
}

func recordFor(event events.Event, hash, principal string, rc *logout.RequestContext) *Record {
	rec := &Record{
		Timestamp:   event.Timestamp,
		EventID:     event.ID,
		SessionHash: hash,
		Principal:   principal,
		LogoutURL:   rc.LogoutURL.URL,
		LogoutType:  rc.LogoutURL.Type,
		Status:      rc.Status(),
		Properties:  rc.Properties(),
	}
	if rc.Service != nil {
		rec.ServiceID = rc.Service.ID
		rec.TicketID = rc.Service.TicketID
	}
	if rc.RegisteredService != nil {
		rec.RegisteredService = rc.RegisteredService.Name
		rec.Protocol = rc.RegisteredService.Protocol
	}
	return rec
}

const selectColumns = `id, timestamp, event_id, session_hash, principal, service_id, ticket_id,
	registered_service, protocol, logout_url, logout_type, status, properties`

func (f SearchFilter) where() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.StartTime != nil {
		add("timestamp >= $%d", *f.StartTime)
	}
	if f.EndTime != nil {
		add("timestamp <= $%d", *f.EndTime)
	}
	if f.SessionHash != "" {
		add("session_hash = $%d", f.SessionHash)
	}
	if f.Principal != "" {
		add("principal = $%d", f.Principal)
	}
	if f.ServiceID != "" {
		add("service_id = $%d", f.ServiceID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Search returns matching records, newest first
func (r *DBRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	where, args := filter.where()
	query := "SELECT " + selectColumns + " FROM slo_audit_logs" + where + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec                            Record
		ticketID, registered, protocol sql.NullString
		logoutType, status             string
		props                          []byte
	)
	err := row.Scan(&rec.ID, &rec.Timestamp, &rec.EventID, &rec.SessionHash, &rec.Principal, &rec.ServiceID,
		&ticketID, &registered, &protocol, &rec.LogoutURL, &logoutType, &status, &props)
	if err != nil {
		return nil, err
	}
	rec.TicketID = ticketID.String
	rec.RegisteredService = registered.String
	rec.Protocol = services.Protocol(protocol.String)
	rec.LogoutType = services.LogoutType(logoutType)
	rec.Status = logout.Status(status)
	if len(props) > 0 {
		if err := json.Unmarshal(props, &rec.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
	}
	return &rec, nil
}

// Get returns one record, or nil when the ID is unknown
func (r *DBRecorder) Get(ctx context.Context, id int64) (*Record, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM slo_audit_logs WHERE id = $1", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log %d: %w", id, err)
	}
	return rec, nil
}

// Stats summarizes records between startTime and endTime, either of which may be nil
func (r *DBRecorder) Stats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error) {
	stats := &Stats{
		ByStatus:   make(map[logout.Status]int64),
		ByProtocol: make(map[services.Protocol]int64),
	}
	if startTime != nil && endTime != nil {
		stats.TimeRange = &TimeRange{Start: *startTime, End: *endTime}
	}
	where, args := SearchFilter{StartTime: startTime, EndTime: endTime}.where()

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT session_hash) FROM slo_audit_logs"+where, args...).
		Scan(&stats.Total, &stats.Sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	if err := r.groupCount(ctx, "status", where, args, func(k string, n int64) { stats.ByStatus[logout.Status(k)] = n }); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "protocol", where, args, func(k string, n int64) { stats.ByProtocol[services.Protocol(k)] = n }); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *DBRecorder) groupCount(ctx context.Context, column, where string, args []interface{}, set func(string, int64)) error {
	query := fmt.Sprintf("SELECT COALESCE(%s, ''), COUNT(*) FROM slo_audit_logs%s GROUP BY %s", column, where, column)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to count audit logs by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		set(key, count)
	}
	return rows.Err()
}

// Export renders matching records in the requested format
func (r *DBRecorder) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	records, err := r.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Encode(records, format)
}

// Cleanup deletes records older than the retention period
func (r *DBRecorder) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
	result, err := r.db.ExecContext(ctx, "DELETE FROM slo_audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}
	return result.RowsAffected()
}
