// SPDX-License-Identifier: MPL-2.0

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	// ErrNoUnitName is returned when a factory is requested without a unit name.
	ErrNoUnitName = errors.New("persistence unit name required")
	// ErrUnitUnavailable is returned when a persistence unit cannot be opened.
	ErrUnitUnavailable = errors.New("persistence unit unavailable")
)

type (
	// Factory is the opened database of a persistence unit.
	Factory struct {
		Name string
		DSN  string
		DB   *sql.DB
	}

	// Registry creates persistence unit factories on demand and shares them.
	// Units with an explicit DSN use it; other units get a database file in
	// the data directory, or a private in-memory database when no data
	// directory is configured.
	Registry struct {
		mu        sync.Mutex
		units     map[string]string
		dataDir   string
		logger    *log.Logger
		factories map[string]*Factory
	}

	// Option configures a Registry.
	Option func(*Registry)
)

// WithUnits sets explicit DSNs per unit name.
func WithUnits(units map[string]string) Option {
	return func(r *Registry) { r.units = maps.Clone(units) }
}

// WithDataDir sets the directory for unit database files.
func WithDataDir(dir string) Option {
	return func(r *Registry) { r.dataDir = dir }
}

// WithLogger sets the registry logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty factory registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		units:     map[string]string{},
		logger:    log.NewWithOptions(io.Discard, log.Options{}),
		factories: map[string]*Factory{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the factory for a unit, opening it on first use.
func (r *Registry) GetOrCreate(ctx context.Context, name string) (*Factory, error) {
	if name == "" {
		return nil, ErrNoUnitName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.factories[name]; ok {
		return f, nil
	}

	dsn, err := r.dsnFor(name)
	if err != nil {
		return nil, err
	}
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnitUnavailable, name, err)
	}

	f := &Factory{Name: name, DSN: dsn, DB: db}
	r.factories[name] = f
	r.logger.Info("persistence unit opened", "unit", name, "dsn", dsn)
	return f, nil
}

func (r *Registry) dsnFor(name string) (string, error) {
	if dsn, ok := r.units[name]; ok && dsn != "" {
		return dsn, nil
	}
	if r.dataDir == "" {
		return MemoryDSN, nil
	}
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return filepath.Join(r.dataDir, name+".db"), nil
}

// Units returns the names of the opened units, sorted.
func (r *Registry) Units() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Close closes every opened factory.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, f := range r.factories {
		if err := f.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(r.factories, name)
	}
	return errors.Join(errs...)
}
