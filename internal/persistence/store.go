// SPDX-License-Identifier: MPL-2.0

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRecordNotFound is returned when a deployment record does not exist.
	ErrRecordNotFound = errors.New("deployment record not found")
	// ErrRecordExists is returned when inserting a record whose id is taken.
	ErrRecordExists = errors.New("deployment record already exists")
)

type (
	// DeploymentRecord is the durable state of a deployed unit.
	DeploymentRecord struct {
		ID         string
		ReleaseID  string
		State      string
		Strategy   string
		DeployedAt time.Time
		UpdatedAt  time.Time
	}

	// DeploymentStore persists deployment records.
	DeploymentStore struct {
		DB  *sql.DB
		Now func() time.Time
	}
)

// NewDeploymentStore creates a store over a migrated database.
func NewDeploymentStore(db *sql.DB) *DeploymentStore {
	return &DeploymentStore{DB: db, Now: time.Now}
}

// Create inserts a record; DeployedAt and UpdatedAt are set to now.
func (s *DeploymentStore) Create(ctx context.Context, rec DeploymentRecord) error {
	now := s.Now().UTC()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO deployments (id, release_id, state, strategy, deployed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ReleaseID, rec.State, rec.Strategy, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deployment %q: %w", rec.ID, ErrRecordExists)
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// Get returns the record for id.
func (s *DeploymentStore) Get(ctx context.Context, id string) (DeploymentRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, release_id, state, strategy, deployed_at, updated_at
		 FROM deployments WHERE id = ?`,
		id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DeploymentRecord{}, fmt.Errorf("deployment %q: %w", id, ErrRecordNotFound)
	}
	return rec, err
}

// List returns every record ordered by id.
func (s *DeploymentStore) List(ctx context.Context) ([]DeploymentRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, release_id, state, strategy, deployed_at, updated_at
		 FROM deployments ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []DeploymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SetState updates the state of a record.
func (s *DeploymentStore) SetState(ctx context.Context, id, state string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE deployments SET state = ?, updated_at = ? WHERE id = ?`,
		state, s.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deployment %q: %w", id, ErrRecordNotFound)
	}
	return nil
}

// Delete removes a record.
func (s *DeploymentStore) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deployment %q: %w", id, ErrRecordNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (DeploymentRecord, error) {
	var rec DeploymentRecord
	if err := s.Scan(&rec.ID, &rec.ReleaseID, &rec.State, &rec.Strategy, &rec.DeployedAt, &rec.UpdatedAt); err != nil {
		return DeploymentRecord{}, err
	}
	return rec, nil
}
