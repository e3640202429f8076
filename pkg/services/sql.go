package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// SQLDirectory reads registered services from PostgreSQL. Matching uses the
// POSIX regex operator so only the winning row is transferred.
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a directory and ensures its table exists
func NewSQLDirectory(ctx context.Context, db *sql.DB) (*SQLDirectory, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	d := &SQLDirectory{db: db}
	if err := d.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure registered_services table: %w", err)
	}
	return d, nil
}

func (d *SQLDirectory) ensureTable(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS registered_services (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		service_id TEXT NOT NULL,
		protocol VARCHAR(10) NOT NULL DEFAULT 'CAS',
		logout_url TEXT NOT NULL DEFAULT '',
		logout_type VARCHAR(20) NOT NULL DEFAULT 'BACK_CHANNEL',
		access_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		access_not_before TIMESTAMP WITH TIME ZONE,
		access_not_after TIMESTAMP WITH TIME ZONE,
		client_id VARCHAR(255) NOT NULL DEFAULT '',
		evaluation_order INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`)
	return err
}

const selectServiceColumns = `
	SELECT id, name, service_id, protocol, logout_url, logout_type,
		access_enabled, access_not_before, access_not_after, client_id, evaluation_order
	FROM registered_services`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanService(row rowScanner) (*RegisteredService, error) {
	var (
		svc                 RegisteredService
		notBefore, notAfter sql.NullTime
	)
	if err := row.Scan(&svc.ID, &svc.Name, &svc.ServiceID, &svc.Protocol, &svc.LogoutURL,
		&svc.LogoutType, &svc.Access.Enabled, &notBefore, &notAfter, &svc.ClientID,
		&svc.EvaluationOrder); err != nil {
		return nil, err
	}
	if notBefore.Valid {
		t := notBefore.Time
		svc.Access.NotBefore = &t
	}
	if notAfter.Valid {
		t := notAfter.Time
		svc.Access.NotAfter = &t
	}
	if err := svc.Compile(); err != nil {
		return nil, err
	}
	return &svc, nil
}

// FindByService returns the lowest evaluation-order service whose pattern
// matches serviceID.
func (d *SQLDirectory) FindByService(ctx context.Context, serviceID string) (*RegisteredService, error) {
	row := d.db.QueryRowContext(ctx, selectServiceColumns+`
	WHERE $1 ~ ('^(?:' || service_id || ')$')
	ORDER BY evaluation_order, id
	LIMIT 1`, serviceID)

	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service for %s: %w", serviceID, err)
	}
	return svc, nil
}

// List returns all registered services in evaluation order
func (d *SQLDirectory) List(ctx context.Context) ([]*RegisteredService, error) {
	rows, err := d.db.QueryContext(ctx, selectServiceColumns+`
	ORDER BY evaluation_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*RegisteredService
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// Save inserts or updates a service by name
func (d *SQLDirectory) Save(ctx context.Context, svc *RegisteredService) error {
	if err := svc.Compile(); err != nil {
		return err
	}

	err := d.db.QueryRowContext(ctx, `
		INSERT INTO registered_services (
			name, service_id, protocol, logout_url, logout_type,
			access_enabled, access_not_before, access_not_after, client_id, evaluation_order, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (name) DO UPDATE SET
			service_id = EXCLUDED.service_id,
			protocol = EXCLUDED.protocol,
			logout_url = EXCLUDED.logout_url,
			logout_type = EXCLUDED.logout_type,
			access_enabled = EXCLUDED.access_enabled,
			access_not_before = EXCLUDED.access_not_before,
			access_not_after = EXCLUDED.access_not_after,
			client_id = EXCLUDED.client_id,
			evaluation_order = EXCLUDED.evaluation_order,
			updated_at = NOW()
		RETURNING id
	`, svc.Name, svc.ServiceID, svc.Protocol, svc.LogoutURL, svc.LogoutType,
		svc.Access.Enabled, svc.Access.NotBefore, svc.Access.NotAfter, svc.ClientID, svc.EvaluationOrder).Scan(&svc.ID)
	if err != nil {
		return fmt.Errorf("failed to save service %s: %w", svc.Name, err)
	}
	return nil
}
