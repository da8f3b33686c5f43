// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"time"
)

// Process event types.
const (
	EventEngineCreated    EventType = "engine.created"
	EventEngineDisposed   EventType = "engine.disposed"
	EventProcessStarted   EventType = "process.started"
	EventProcessCompleted EventType = "process.completed"
)

type (
	// EventType names a process event.
	EventType string

	// ProcessEvent is dispatched to the listeners of an engine. Listeners run
	// in order and may enrich the event for the listeners after them.
	ProcessEvent struct {
		Type              EventType
		DeploymentID      string
		EngineID          string
		ProcessID         string
		ProcessInstanceID string
		Identity          string
		At                time.Time
	}

	// ProcessEventListener observes process events.
	ProcessEventListener interface {
		OnEvent(ctx context.Context, e *ProcessEvent)
	}

	// ProcessEventListenerFunc adapts a function to ProcessEventListener.
	ProcessEventListenerFunc func(ctx context.Context, e *ProcessEvent)

	// IdentityProvider names the identity on whose behalf engines act.
	IdentityProvider interface {
		Name() string
	}

	// StaticIdentity is an IdentityProvider with a fixed name.
	StaticIdentity string

	// IdentityProviderAwareProcessListener stamps events without an identity
	// with the provider's identity.
	IdentityProviderAwareProcessListener struct {
		Provider IdentityProvider
	}

	// WorkItem is a unit of work handed to a work item handler.
	WorkItem struct {
		ID         string
		Name       string
		Parameters map[string]any
	}

	// WorkItemHandler executes work items of one kind.
	WorkItemHandler interface {
		ExecuteWorkItem(ctx context.Context, item WorkItem) (map[string]any, error)
	}
)

// OnEvent calls f.
func (f ProcessEventListenerFunc) OnEvent(ctx context.Context, e *ProcessEvent) { f(ctx, e) }

// Name returns the identity.
func (s StaticIdentity) Name() string { return string(s) }

// OnEvent implements ProcessEventListener.
func (l *IdentityProviderAwareProcessListener) OnEvent(_ context.Context, e *ProcessEvent) {
	if e.Identity == "" && l.Provider != nil {
		e.Identity = l.Provider.Name()
	}
}
