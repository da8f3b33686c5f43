// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kdeploy/kdeploy/pkg/descriptor"
)

var (
	// ErrManagerClosed is returned when requesting an engine from a closed manager.
	ErrManagerClosed = errors.New("runtime manager closed")
	// ErrUnknownEngine is returned when disposing an engine the manager does not own.
	ErrUnknownEngine = errors.New("engine not owned by runtime manager")
)

type (
	// RuntimeContext selects an engine. ProcessInstanceID is only used by the
	// per-process-instance strategy.
	RuntimeContext struct {
		ProcessInstanceID string
	}

	// Manager hands out engines for one deployment.
	Manager interface {
		Identifier() string
		Strategy() descriptor.RuntimeStrategy
		Environment() *Environment
		Engine(ctx context.Context, rc RuntimeContext) (*Engine, error)
		DisposeEngine(ctx context.Context, e *Engine) error
		Engines() int
		Close(ctx context.Context) error
	}

	// Engine is a runtime engine equipped by the environment's items factory.
	Engine struct {
		ID           string
		DeploymentID string

		env           *Environment
		listeners     []ProcessEventListener
		taskListeners []any
		handlers      map[string]WorkItemHandler
		globals       map[string]any
		now           func() time.Time
	}

	// ManagerOption configures a manager.
	ManagerOption func(*manager)

	manager struct {
		id       string
		strategy descriptor.RuntimeStrategy
		env      *Environment
		logger   *log.Logger
		now      func() time.Time

		mu         sync.Mutex
		closed     bool
		engines    map[string]*Engine
		singleton  *Engine
		byInstance map[string]*Engine
	}
)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *log.Logger) ManagerOption {
	return func(m *manager) { m.logger = l }
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *manager) { m.now = now }
}

// NewManager creates a runtime manager for a deployment. An empty strategy
// means SINGLETON; the singleton engine is created immediately.
func NewManager(ctx context.Context, strategy descriptor.RuntimeStrategy, identifier string, env *Environment, opts ...ManagerOption) (Manager, error) {
	if strategy == "" {
		strategy = descriptor.StrategySingleton
	}
	if ok, errs := strategy.IsValid(); !ok {
		return nil, errs[0]
	}

	m := &manager{
		id:         identifier,
		strategy:   strategy,
		env:        env,
		logger:     log.NewWithOptions(io.Discard, log.Options{}),
		now:        time.Now,
		engines:    map[string]*Engine{},
		byInstance: map[string]*Engine{},
	}
	for _, opt := range opts {
		opt(m)
	}

	if strategy == descriptor.StrategySingleton {
		e, err := m.newEngine(ctx)
		if err != nil {
			return nil, err
		}
		m.singleton = e
	}
	return m, nil
}

func (m *manager) Identifier() string                   { return m.id }
func (m *manager) Strategy() descriptor.RuntimeStrategy { return m.strategy }
func (m *manager) Environment() *Environment            { return m.env }

func (m *manager) Engines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

func (m *manager) Engine(ctx context.Context, rc RuntimeContext) (*Engine, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", m.id, ErrManagerClosed)
	}
	switch m.strategy {
	case descriptor.StrategySingleton:
		e := m.singleton
		m.mu.Unlock()
		return e, nil
	case descriptor.StrategyPerProcessInstance:
		if e, ok := m.byInstance[rc.ProcessInstanceID]; ok && rc.ProcessInstanceID != "" {
			m.mu.Unlock()
			return e, nil
		}
	}
	m.mu.Unlock()

	e, err := m.newEngine(ctx)
	if err != nil {
		return nil, err
	}

	if m.strategy == descriptor.StrategyPerProcessInstance && rc.ProcessInstanceID != "" {
		m.mu.Lock()
		if existing, ok := m.byInstance[rc.ProcessInstanceID]; ok {
			m.mu.Unlock()
			_ = m.dispose(ctx, e)
			return existing, nil
		}
		m.byInstance[rc.ProcessInstanceID] = e
		m.mu.Unlock()
	}
	return e, nil
}

func (m *manager) newEngine(ctx context.Context) (*Engine, error) {
	e := &Engine{
		ID:           uuid.NewString(),
		DeploymentID: m.id,
		env:          m.env,
		handlers:     map[string]WorkItemHandler{},
		globals:      map[string]any{},
		now:          m.now,
	}

	if items := m.env.RegisterableItemsFactory(); items != nil {
		var err error
		if e.listeners, err = items.ProcessEventListeners(ctx, e); err != nil {
			return nil, fmt.Errorf("engine listeners: %w", err)
		}
		if e.taskListeners, err = items.TaskEventListeners(ctx, e); err != nil {
			return nil, fmt.Errorf("engine task listeners: %w", err)
		}
		if e.handlers, err = items.WorkItemHandlers(ctx, e); err != nil {
			return nil, fmt.Errorf("engine work item handlers: %w", err)
		}
		if e.globals, err = items.Globals(ctx, e); err != nil {
			return nil, fmt.Errorf("engine globals: %w", err)
		}
	}

	m.mu.Lock()
	m.engines[e.ID] = e
	m.mu.Unlock()

	m.logger.Debug("engine created", "deployment", m.id, "engine", e.ID, "strategy", m.strategy)
	e.Fire(ctx, ProcessEvent{Type: EventEngineCreated})
	return e, nil
}

func (m *manager) DisposeEngine(ctx context.Context, e *Engine) error {
	if m.strategy == descriptor.StrategySingleton {
		// The singleton engine lives until Close.
		return nil
	}
	return m.dispose(ctx, e)
}

func (m *manager) dispose(ctx context.Context, e *Engine) error {
	m.mu.Lock()
	if _, ok := m.engines[e.ID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", e.ID, ErrUnknownEngine)
	}
	delete(m.engines, e.ID)
	maps.DeleteFunc(m.byInstance, func(_ string, v *Engine) bool { return v == e })
	m.mu.Unlock()

	e.Fire(ctx, ProcessEvent{Type: EventEngineDisposed})
	return nil
}

func (m *manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	engines := slices.Collect(maps.Values(m.engines))
	m.engines = map[string]*Engine{}
	m.byInstance = map[string]*Engine{}
	m.singleton = nil
	m.mu.Unlock()

	for _, e := range engines {
		e.Fire(ctx, ProcessEvent{Type: EventEngineDisposed})
	}
	m.logger.Debug("runtime manager closed", "deployment", m.id, "engines", len(engines))
	return nil
}

// Environment returns the environment the engine was created from.
func (e *Engine) Environment() *Environment { return e.env }

// Listeners returns the process event listeners in dispatch order.
func (e *Engine) Listeners() []ProcessEventListener { return slices.Clone(e.listeners) }

// TaskEventListeners returns the task event listeners.
func (e *Engine) TaskEventListeners() []any { return slices.Clone(e.taskListeners) }

// WorkItemHandler returns the handler registered under name.
func (e *Engine) WorkItemHandler(name string) (WorkItemHandler, bool) {
	h, ok := e.handlers[name]
	return h, ok
}

// Global returns the global registered under name.
func (e *Engine) Global(name string) (any, bool) {
	g, ok := e.globals[name]
	return g, ok
}

// Fire dispatches an event to the engine's listeners in order, filling in
// the deployment, engine and timestamp.
func (e *Engine) Fire(ctx context.Context, ev ProcessEvent) {
	ev.DeploymentID = e.DeploymentID
	ev.EngineID = e.ID
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	for _, l := range e.listeners {
		l.OnEvent(ctx, &ev)
	}
}

// Marshal encodes obj with the environment's marshalling strategies.
func (e *Engine) Marshal(obj any) ([]byte, int, error) {
	return Marshal(e.env.MarshallingStrategies(), obj)
}
