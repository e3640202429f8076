package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/ssohub/pkg/events"
	"github.com/platinummonkey/ssohub/pkg/logout"
	"github.com/platinummonkey/ssohub/pkg/services"
	"github.com/platinummonkey/ssohub/pkg/tickets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordColumns = []string{
	"id", "timestamp", "event_id", "session_hash", "principal", "service_id", "ticket_id",
	"registered_service", "protocol", "logout_url", "logout_type", "status", "properties",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestRecorder(t *testing.T) (*DBRecorder, sqlmock.Sqlmock) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS slo_audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	r, err := NewDBRecorder(context.Background(), db, nil)
	require.NoError(t, err)
	return r, mock
}

func terminatedEvent(statuses ...logout.Status) events.Event {
	rs := &services.RegisteredService{Name: "app", Protocol: services.ProtocolCAS, LogoutType: services.LogoutTypeBackChannel}
	var results []*logout.RequestContext
	for i, s := range statuses {
		svc := tickets.NewSessionService("https://app.example.com", "", "ST-"+string(rune('1'+i)))
		rc := logout.NewRequestContext("TGT-1", svc, rs, logout.LogoutURL{URL: "https://app.example.com/slo", Type: services.LogoutTypeBackChannel})
		rc.SetStatus(s)
		results = append(results, rc)
	}
	return events.NewEvent(events.EventSessionTerminated, &logout.SessionTerminated{
		SessionHash: logout.SessionIDClaim("TGT-1"),
		Principal:   "alice",
		Results:     results,
	})
}

func TestNewDBRecorder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, mock := newTestRecorder(t)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		r, err := NewDBRecorder(context.Background(), nil, nil)
		assert.Error(t, err)
		assert.Nil(t, r)
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS slo_audit_logs").WillReturnError(errors.New("permission denied"))

		r, err := NewDBRecorder(context.Background(), db, nil)
		assert.Nil(t, r)
		assert.ErrorContains(t, err, "failed to ensure slo_audit_logs table")
	})
}

func TestDBRecorder_Publish(t *testing.T) {
	r, mock := newTestRecorder(t)
	event := terminatedEvent(logout.StatusSuccess, logout.StatusFailure)
	hash := logout.SessionIDClaim("TGT-1")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO slo_audit_logs").
		WithArgs(sqlmock.AnyArg(), event.ID, hash, "alice", "https://app.example.com", "ST-1", "app", "CAS",
			"https://app.example.com/slo", "BACK_CHANNEL", "SUCCESS", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO slo_audit_logs").
		WithArgs(sqlmock.AnyArg(), event.ID, hash, "alice", "https://app.example.com", "ST-2", "app", "CAS",
			"https://app.example.com/slo", "BACK_CHANNEL", "FAILURE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, r.Publish(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_PublishRollsBackOnError(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO slo_audit_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := r.Publish(context.Background(), terminatedEvent(logout.StatusSuccess))
	assert.ErrorContains(t, err, "failed to insert audit log")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_PublishIgnoresOtherEvents(t *testing.T) {
	r, mock := newTestRecorder(t)

	require.NoError(t, r.Publish(context.Background(), events.NewEvent("other.event", nil)))
	require.NoError(t, r.Publish(context.Background(), terminatedEvent()))

	err := r.Publish(context.Background(), events.NewEvent(events.EventSessionTerminated, "not a payload"))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_Search(t *testing.T) {
	r, mock := newTestRecorder(t)
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(recordColumns).
		AddRow(7, ts, "evt-1", "hash", "alice", "https://app.example.com", "ST-1", "app", "CAS",
			"https://app.example.com/slo", "BACK_CHANNEL", "FAILURE", []byte(`{"error":"503"}`)).
		AddRow(6, ts, "evt-1", "hash", "alice", "https://other.example.com", nil, nil, nil,
			"https://other.example.com/slo", "FRONT_CHANNEL", "NOT_ATTEMPTED", nil)

	mock.ExpectQuery(`SELECT (.+) FROM slo_audit_logs WHERE principal = \$1 AND status = ANY\(\$2\) ORDER BY timestamp DESC, id DESC LIMIT \$3`).
		WithArgs("alice", sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	records, err := r.Search(context.Background(), SearchFilter{
		Principal: "alice",
		Statuses:  []logout.Status{logout.StatusFailure, logout.StatusNotAttempted},
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(7), records[0].ID)
	assert.Equal(t, services.ProtocolCAS, records[0].Protocol)
	assert.Equal(t, logout.StatusFailure, records[0].Status)
	assert.Equal(t, "503", records[0].Properties["error"])
	assert.Equal(t, "", records[1].TicketID)
	assert.Equal(t, services.LogoutTypeFrontChannel, records[1].LogoutType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_Get(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectQuery(`FROM slo_audit_logs WHERE id = \$1`).WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	rec, err := r.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_Stats(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT session_hash\) FROM slo_audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sessions"}).AddRow(5, 2))
	mock.ExpectQuery(`GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("SUCCESS", 4).AddRow("FAILURE", 1))
	mock.ExpectQuery(`GROUP BY protocol`).
		WillReturnRows(sqlmock.NewRows([]string{"protocol", "count"}).AddRow("CAS", 3).AddRow("OIDC", 2))

	stats, err := r.Stats(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(2), stats.Sessions)
	assert.Equal(t, int64(4), stats.ByStatus[logout.StatusSuccess])
	assert.Equal(t, int64(2), stats.ByProtocol[services.ProtocolOIDC])
	assert.Nil(t, stats.TimeRange)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorder_Cleanup(t *testing.T) {
	r, mock := newTestRecorder(t)

	mock.ExpectExec(`DELETE FROM slo_audit_logs WHERE timestamp < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := r.Cleanup(context.Background(), DefaultRetentionPolicy())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = r.Cleanup(context.Background(), RetentionPolicy{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
