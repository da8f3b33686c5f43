// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kdeploy/kdeploy/internal/config"
	"github.com/kdeploy/kdeploy/internal/issue"
	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/descriptor"

	"github.com/charmbracelet/log"
)

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoadHostDescriptor(t *testing.T) {
	t.Parallel()

	t.Run("built-in default", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Persistence.DefaultUnit = "org.acme.domain"
		cfg.Deployment.RuntimeStrategy = descriptor.StrategyPerProcessInstance

		d, err := loadHostDescriptor(cfg)
		if err != nil {
			t.Fatalf("loadHostDescriptor() error = %v", err)
		}
		if d.PersistenceUnit != "org.acme.domain" || d.RuntimeStrategy != descriptor.StrategyPerProcessInstance {
			t.Errorf("descriptor = %+v", d)
		}
	})

	t.Run("descriptor file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "host.yaml")
		if err := os.WriteFile(path, []byte("audit_mode: JMS\nruntime_strategy: PER_REQUEST\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := config.DefaultConfig()
		cfg.Deployment.Descriptor = path

		d, err := loadHostDescriptor(cfg)
		if err != nil {
			t.Fatalf("loadHostDescriptor() error = %v", err)
		}
		if d.AuditMode != descriptor.AuditJMS || d.RuntimeStrategy != descriptor.StrategyPerRequest {
			t.Errorf("descriptor = %+v", d)
		}
		if d.PersistenceUnit != descriptor.DefaultPersistenceUnit {
			t.Errorf("PersistenceUnit = %q, want the configured default unit", d.PersistenceUnit)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Deployment.Descriptor = filepath.Join(t.TempDir(), "missing.yaml")

		_, err := loadHostDescriptor(cfg)
		if id, _ := classifyError(err, false); id != issue.InvalidDescriptorId {
			t.Errorf("loadHostDescriptor() error = %v classified as %d", err, id)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("loadHostDescriptor() error = %v, want a not-exist cause", err)
		}
	})
}

func TestServe_RestoresAndStops(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	testutil.NewKjar("org.acme", "orders", "1.0").Process("order.bpmn", "org.acme.order").Install(t, c.cfg.Repository.Path)
	if err := c.run("deploy", "--keep", "org.acme:orders:1.0"); err != nil {
		t.Fatalf("deploy error = %v\n%s", err, c.stderr)
	}

	stdout := &syncBuffer{}
	app, err := NewApp(Dependencies{Config: staticConfig{cfg: c.cfg}, Stdout: stdout, Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := newHost(ctx, c.cfg, log.NewWithOptions(&bytes.Buffer{}, log.Options{}))
	if err != nil {
		t.Fatalf("newHost() error = %v", err)
	}
	t.Cleanup(func() { _ = h.close() })

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, app, h, true) }()

	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(stdout.String(), "Watching") {
		if time.Now().After(deadline) {
			t.Fatalf("serve did not start, output:\n%s", stdout)
		}
		select {
		case err := <-done:
			t.Fatalf("serve returned early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}

	if !h.service.Registry().IsDeployed("org.acme:orders:1.0") {
		t.Error("kept deployment was not restored")
	}
	out := stdout.String()
	for _, want := range []string{"Restored 1 deployment(s)", "Admin console listening", "token:"} {
		if !strings.Contains(out, want) {
			t.Errorf("serve output missing %q:\n%s", want, out)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServe() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}
