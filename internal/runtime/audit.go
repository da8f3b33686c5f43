// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/internal/persistence"
)

type (
	// AuditEvent is an audit record built from a process event.
	AuditEvent struct {
		DeploymentID string
		EngineID     string
		Event        string
		Subject      string
		Identity     string
		At           time.Time
	}

	// AuditEventBuilder turns process events into audit records.
	AuditEventBuilder interface {
		Build(e *ProcessEvent) AuditEvent
	}

	// DefaultAuditEventBuilder records the process instance, or the process
	// id when there is no instance, as the subject.
	DefaultAuditEventBuilder struct{}

	// AuditSink stores audit records.
	AuditSink interface {
		Write(ctx context.Context, e AuditEvent) error
	}

	// LogAuditSink writes audit records to a logger.
	LogAuditSink struct {
		Logger *log.Logger
	}

	// StoreAuditSink writes audit records to a persistence unit.
	StoreAuditSink struct {
		Log *persistence.AuditLog
	}

	// AuditListener builds and writes an audit record for every event.
	// Sink failures are logged and never interrupt the engine.
	AuditListener struct {
		Builder AuditEventBuilder
		Sink    AuditSink
		Logger  *log.Logger
	}
)

// Build implements AuditEventBuilder.
func (DefaultAuditEventBuilder) Build(e *ProcessEvent) AuditEvent {
	subject := e.ProcessInstanceID
	if subject == "" {
		subject = e.ProcessID
	}
	return AuditEvent{
		DeploymentID: e.DeploymentID,
		EngineID:     e.EngineID,
		Event:        string(e.Type),
		Subject:      subject,
		Identity:     e.Identity,
		At:           e.At,
	}
}

// Write implements AuditSink.
func (s LogAuditSink) Write(_ context.Context, e AuditEvent) error {
	s.Logger.Info("audit",
		"deployment", e.DeploymentID,
		"engine", e.EngineID,
		"event", e.Event,
		"subject", e.Subject,
		"identity", e.Identity)
	return nil
}

// Write implements AuditSink.
func (s StoreAuditSink) Write(ctx context.Context, e AuditEvent) error {
	return s.Log.Append(ctx, persistence.AuditEntry{
		DeploymentID: e.DeploymentID,
		EngineID:     e.EngineID,
		Event:        e.Event,
		Subject:      e.Subject,
		Identity:     e.Identity,
		CreatedAt:    e.At,
	})
}

// NewAuditListener creates an audit listener. A nil builder means
// DefaultAuditEventBuilder; a nil logger discards warnings.
func NewAuditListener(builder AuditEventBuilder, sink AuditSink, logger *log.Logger) *AuditListener {
	if builder == nil {
		builder = DefaultAuditEventBuilder{}
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &AuditListener{Builder: builder, Sink: sink, Logger: logger}
}

// OnEvent implements ProcessEventListener.
func (l *AuditListener) OnEvent(ctx context.Context, e *ProcessEvent) {
	rec := l.Builder.Build(e)
	if err := l.Sink.Write(ctx, rec); err != nil {
		l.Logger.Warn("audit write failed", "deployment", rec.DeploymentID, "event", rec.Event, "err", err)
	}
}
