// SPDX-License-Identifier: MPL-2.0

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type (
	// AuditEntry is one audit log row.
	AuditEntry struct {
		DeploymentID string
		EngineID     string
		Event        string
		Subject      string
		Identity     string
		CreatedAt    time.Time
	}

	// AuditLog appends audit entries to a persistence unit.
	AuditLog struct {
		DB *sql.DB
	}
)

// Append writes an entry. A zero CreatedAt is set to now.
func (a *AuditLog) Append(ctx context.Context, e AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO audit_log (deployment_id, engine_id, event, subject, identity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.DeploymentID, e.EngineID, e.Event, e.Subject, e.Identity, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Entries returns the entries of a deployment in insertion order.
func (a *AuditLog) Entries(ctx context.Context, deploymentID string) ([]AuditEntry, error) {
	rows, err := a.DB.QueryContext(ctx,
		`SELECT deployment_id, engine_id, event, subject, identity, created_at
		 FROM audit_log WHERE deployment_id = ? ORDER BY seq`,
		deploymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.DeploymentID, &e.EngineID, &e.Event, &e.Subject, &e.Identity, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
