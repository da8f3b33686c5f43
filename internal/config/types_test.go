// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   LogLevel
		want    bool
		wantErr bool
	}{
		{LogLevelDebug, true, false},
		{LogLevelInfo, true, false},
		{LogLevelWarn, true, false},
		{LogLevelError, true, false},
		{"", false, true},
		{"trace", false, true},
		{"INFO", false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			t.Parallel()
			isValid, errs := tt.level.IsValid()
			if isValid != tt.want {
				t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tt.level, isValid, tt.want)
			}
			if tt.wantErr {
				if len(errs) == 0 {
					t.Fatalf("LogLevel(%q).IsValid() returned no errors, want error", tt.level)
				}
				if !errors.Is(errs[0], ErrInvalidLogLevel) {
					t.Errorf("error should wrap ErrInvalidLogLevel, got: %v", errs[0])
				}
			} else if len(errs) > 0 {
				t.Errorf("LogLevel(%q).IsValid() returned unexpected errors: %v", tt.level, errs)
			}
		})
	}
}

func TestPersistenceConfig_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		units []UnitEntry
		want  int
	}{
		{"no units", nil, 0},
		{"one unit", []UnitEntry{{Name: "org.jbpm.domain", DSN: ":memory:"}}, 0},
		{"blank name", []UnitEntry{{Name: " ", DSN: ":memory:"}}, 1},
		{"blank dsn", []UnitEntry{{Name: "audit", DSN: ""}}, 1},
		{"duplicate name", []UnitEntry{{Name: "audit", DSN: "a.db"}, {Name: "audit", DSN: "b.db"}}, 1},
		{"two problems", []UnitEntry{{Name: "", DSN: "a.db"}, {Name: "audit"}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			valid, errs := PersistenceConfig{Units: tt.units}.IsValid()
			if valid != (tt.want == 0) || len(errs) != tt.want {
				t.Fatalf("IsValid() = %v, %d errors (%v), want %d errors", valid, len(errs), errs, tt.want)
			}
			for _, err := range errs {
				if !errors.Is(err, ErrInvalidUnitEntry) {
					t.Errorf("error should wrap ErrInvalidUnitEntry, got: %v", err)
				}
			}
		})
	}
}

func TestPersistenceConfig_UnitMap(t *testing.T) {
	t.Parallel()

	c := PersistenceConfig{Units: []UnitEntry{
		{Name: "org.jbpm.domain", DSN: ":memory:"},
		{Name: "audit", DSN: "/var/lib/kdeploy/audit.db"},
	}}
	m := c.UnitMap()
	if len(m) != 2 || m["audit"] != "/var/lib/kdeploy/audit.db" || m["org.jbpm.domain"] != ":memory:" {
		t.Errorf("UnitMap() = %v", m)
	}
}

func TestDeploymentConfig_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DeploymentConfig
		want error
	}{
		{"zero value", DeploymentConfig{}, nil},
		{"defaults", DefaultConfig().Deployment, nil},
		{"unknown merge mode", DeploymentConfig{MergeMode: "MERGE_ALL"}, descriptor.ErrInvalidMergeMode},
		{"unknown strategy", DeploymentConfig{RuntimeStrategy: "PER_CALL"}, descriptor.ErrInvalidRuntimeStrategy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			valid, errs := tt.cfg.IsValid()
			if tt.want == nil {
				if !valid {
					t.Errorf("IsValid() errors = %v", errs)
				}
				return
			}
			if valid || len(errs) != 1 || !errors.Is(errs[0], tt.want) {
				t.Errorf("IsValid() = %v, %v, want %v", valid, errs, tt.want)
			}
		})
	}
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	if valid, errs := DefaultConfig().IsValid(); !valid {
		t.Fatalf("DefaultConfig().IsValid() errors = %v", errs)
	}

	cfg := DefaultConfig()
	cfg.Admin.Port = 70000
	cfg.Admin.TokenTTL = -time.Second
	cfg.Watch.Debounce = -time.Millisecond
	cfg.Log.Level = "verbose"

	valid, errs := cfg.IsValid()
	if valid || len(errs) != 1 {
		t.Fatalf("IsValid() = %v, %v, want a single aggregate error", valid, errs)
	}
	if !errors.Is(errs[0], ErrInvalidConfig) {
		t.Errorf("error should wrap ErrInvalidConfig, got: %v", errs[0])
	}

	var cfgErr *InvalidConfigError
	if !errors.As(errs[0], &cfgErr) {
		t.Fatalf("error should be *InvalidConfigError, got %T", errs[0])
	}
	wants := []error{ErrInvalidPort, ErrInvalidDuration, ErrInvalidDuration, ErrInvalidLogLevel}
	if len(cfgErr.FieldErrors) != len(wants) {
		t.Fatalf("FieldErrors = %v, want %d entries", cfgErr.FieldErrors, len(wants))
	}
	for i, want := range wants {
		if !errors.Is(cfgErr.FieldErrors[i], want) {
			t.Errorf("FieldErrors[%d] = %v, want %v", i, cfgErr.FieldErrors[i], want)
		}
	}
}
