// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/internal/objectmodel"
	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

func testContainer(t *testing.T, system *classloader.Registry) (*kmodule.Container, *kmodule.KieBase) {
	t.Helper()
	a, err := kmodule.NewArchive(testutil.NewKjar("org.acme", "orders", "1.0").KieBase("orders", true).Files())
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}
	c := kmodule.NewContainer(kmodule.NewModule(*a.Model.Release, a, nil, nil), system)
	kb, err := c.KieBase("orders")
	if err != nil {
		t.Fatalf("KieBase() error = %v", err)
	}
	return c, kb
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	_, kb := testContainer(t, nil)

	t.Run("persistent builder requires a factory", func(t *testing.T) {
		t.Parallel()

		if _, err := NewDefaultBuilder().KnowledgeBase(kb).Get(); !errors.Is(err, ErrNoEntityManagerFactory) {
			t.Errorf("Get() error = %v, want ErrNoEntityManagerFactory", err)
		}
	})

	t.Run("knowledge base is required", func(t *testing.T) {
		t.Parallel()

		if _, err := NewDefaultInMemoryBuilder().Get(); !errors.Is(err, ErrNoKnowledgeBase) {
			t.Errorf("Get() error = %v, want ErrNoKnowledgeBase", err)
		}
	})

	t.Run("entries keep insertion order", func(t *testing.T) {
		t.Parallel()

		b := NewDefaultInMemoryBuilder().
			KnowledgeBase(kb).
			AddEnvironmentEntry("b", 1).
			AddEnvironmentEntry("a", 2).
			AddEnvironmentEntry("b", 3).
			AddConfiguration("timeout", "30s")
		env, err := b.Get()
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		b.AddEnvironmentEntry("late", true)

		if got := env.EntryNames(); !slices.Equal(got, []string{"b", "a"}) {
			t.Errorf("EntryNames() = %v", got)
		}
		if v, _ := env.Get("b"); v != 3 {
			t.Errorf("Get(b) = %v, want 3", v)
		}
		if _, ok := env.Get("late"); ok {
			t.Error("builder changes leaked into a built environment")
		}
		if v, ok := env.Configuration("timeout"); !ok || v != "30s" {
			t.Errorf("Configuration(timeout) = %q, %v", v, ok)
		}
		if env.Persistent() {
			t.Error("in-memory environment reports persistent")
		}
	})
}

func TestMarshal_FirstAcceptingStrategyWins(t *testing.T) {
	t.Parallel()

	placeholder := NewPlaceholderResolverStrategy()
	strategies := []MarshallingStrategy{JSONMarshallingStrategy{}, placeholder}

	data, idx, err := Marshal(strategies, map[string]any{"total": 3.5})
	if err != nil || idx != 0 || string(data) != `{"total":3.5}` {
		t.Errorf("Marshal(map) = %s, %d, %v", data, idx, err)
	}

	type order struct{ ID int }
	data, idx, err = Marshal(strategies, order{ID: 7})
	if err != nil || idx != 1 {
		t.Fatalf("Marshal(struct) = %s, %d, %v", data, idx, err)
	}
	back, err := placeholder.Unmarshal(data)
	if err != nil || back.(order).ID != 7 {
		t.Errorf("Unmarshal() = %v, %v", back, err)
	}
	if _, err := placeholder.Unmarshal([]byte("nope")); !errors.Is(err, ErrUnknownPlaceholder) {
		t.Errorf("Unmarshal(nope) error = %v", err)
	}

	if _, _, err := Marshal([]MarshallingStrategy{JSONMarshallingStrategy{}}, order{}); !errors.Is(err, ErrNoStrategy) {
		t.Errorf("Marshal without fallback error = %v, want ErrNoStrategy", err)
	}
}

type recordingListener struct {
	mu     sync.Mutex
	events []ProcessEvent
}

func (r *recordingListener) OnEvent(_ context.Context, e *ProcessEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
}

func (r *recordingListener) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type listenerFactory struct {
	listener ProcessEventListener
	created  atomic.Int32
}

func (f *listenerFactory) ProcessEventListeners(context.Context, *Engine) ([]ProcessEventListener, error) {
	f.created.Add(1)
	return []ProcessEventListener{f.listener}, nil
}
func (f *listenerFactory) TaskEventListeners(context.Context, *Engine) ([]any, error) { return nil, nil }
func (f *listenerFactory) WorkItemHandlers(context.Context, *Engine) (map[string]WorkItemHandler, error) {
	return nil, nil
}
func (f *listenerFactory) Globals(context.Context, *Engine) (map[string]any, error) { return nil, nil }

func managerEnv(t *testing.T, items RegisterableItemsFactory) *Environment {
	t.Helper()
	_, kb := testContainer(t, nil)
	env, err := NewDefaultInMemoryBuilder().KnowledgeBase(kb).RegisterableItemsFactory(items).Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return env
}

func TestManager_Strategies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("singleton shares one engine", func(t *testing.T) {
		t.Parallel()

		rec := &recordingListener{}
		items := &listenerFactory{listener: rec}
		m, err := NewManager(ctx, "", "org.acme:orders:1.0", managerEnv(t, items))
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if m.Strategy() != descriptor.StrategySingleton || m.Engines() != 1 {
			t.Fatalf("Strategy() = %s, Engines() = %d", m.Strategy(), m.Engines())
		}
		e1, _ := m.Engine(ctx, RuntimeContext{})
		e2, _ := m.Engine(ctx, RuntimeContext{ProcessInstanceID: "42"})
		if e1 != e2 || items.created.Load() != 1 {
			t.Error("singleton manager created more than one engine")
		}
		if err := m.DisposeEngine(ctx, e1); err != nil || m.Engines() != 1 {
			t.Errorf("DisposeEngine() on singleton = %v, engines %d", err, m.Engines())
		}

		if err := m.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := m.Engine(ctx, RuntimeContext{}); !errors.Is(err, ErrManagerClosed) {
			t.Errorf("Engine() after Close error = %v", err)
		}
		if got := rec.types(); !slices.Equal(got, []EventType{EventEngineCreated, EventEngineDisposed}) {
			t.Errorf("events = %v", got)
		}
	})

	t.Run("per request creates engines on demand", func(t *testing.T) {
		t.Parallel()

		m, err := NewManager(ctx, descriptor.StrategyPerRequest, "d", managerEnv(t, nil))
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		e1, _ := m.Engine(ctx, RuntimeContext{})
		e2, _ := m.Engine(ctx, RuntimeContext{})
		if e1 == e2 || e1.ID == e2.ID || m.Engines() != 2 {
			t.Fatalf("per request engines not distinct: %d", m.Engines())
		}
		if err := m.DisposeEngine(ctx, e1); err != nil || m.Engines() != 1 {
			t.Errorf("DisposeEngine() = %v, engines %d", err, m.Engines())
		}
		if err := m.DisposeEngine(ctx, e1); !errors.Is(err, ErrUnknownEngine) {
			t.Errorf("second DisposeEngine() error = %v", err)
		}
		_ = m.Close(ctx)
		if m.Engines() != 0 {
			t.Errorf("Engines() after Close = %d", m.Engines())
		}
	})

	t.Run("per process instance binds engines", func(t *testing.T) {
		t.Parallel()

		m, err := NewManager(ctx, descriptor.StrategyPerProcessInstance, "d", managerEnv(t, nil))
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		a1, _ := m.Engine(ctx, RuntimeContext{ProcessInstanceID: "1"})
		a2, _ := m.Engine(ctx, RuntimeContext{ProcessInstanceID: "1"})
		b, _ := m.Engine(ctx, RuntimeContext{ProcessInstanceID: "2"})
		if a1 != a2 || a1 == b {
			t.Error("engines not bound per process instance")
		}
		_ = m.DisposeEngine(ctx, a1)
		a3, _ := m.Engine(ctx, RuntimeContext{ProcessInstanceID: "1"})
		if a3 == a1 {
			t.Error("disposed engine handed out again")
		}
	})

	t.Run("invalid strategy", func(t *testing.T) {
		t.Parallel()

		_, err := NewManager(ctx, "EVERY_TUESDAY", "d", managerEnv(t, nil))
		if !errors.Is(err, descriptor.ErrInvalidRuntimeStrategy) {
			t.Errorf("NewManager() error = %v, want ErrInvalidRuntimeStrategy", err)
		}
	})
}

func TestDescriptorItemsFactory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var logs bytes.Buffer
	logger := log.NewWithOptions(&logs, log.Options{})

	system := classloader.NewRegistry()
	RegisterHostTypes(system, logger)
	c, kb := testContainer(t, system)

	pf, err := persistence.NewRegistry().GetOrCreate(ctx, "audit")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	auditLog := &persistence.AuditLog{DB: pf.DB}

	d := &descriptor.Descriptor{
		EventListeners: []descriptor.ObjectModel{
			descriptor.NewObjectModel(objectmodel.KindReflection, ClassLoggingEventListener, "listener"),
		},
		WorkItemHandlers: []descriptor.NamedObjectModel{
			descriptor.NewNamedObjectModel("Log", objectmodel.KindReflection, ClassLoggingWorkItemHandler),
		},
		Globals: []descriptor.NamedObjectModel{
			descriptor.NewNamedObjectModel("deployment", objectmodel.KindEnv, "${deploymentId}"),
		},
	}
	items := &DescriptorItemsFactory{
		Descriptor: d,
		Resolver:   objectmodel.NewDefaultRegistry(),
		Loader:     c.ClassLoader(),
		Params:     objectmodel.ContextParams(pf, c.ClassLoader()),
		Identity:   StaticIdentity("alice"),
		Audit:      NewAuditListener(nil, StoreAuditSink{Log: auditLog}, logger),
	}
	env, err := NewDefaultBuilder().KnowledgeBase(kb).EntityManagerFactory(pf).RegisterableItemsFactory(items).Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m, err := NewManager(ctx, descriptor.StrategySingleton, "org.acme:orders:1.0", env, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	engine, _ := m.Engine(ctx, RuntimeContext{})

	if got := len(engine.Listeners()); got != 3 {
		t.Fatalf("len(Listeners()) = %d, want identity, audit and declared listener", got)
	}
	if _, ok := engine.WorkItemHandler("Log"); !ok {
		t.Error("WorkItemHandler(Log) missing")
	}
	if g, _ := engine.Global("deployment"); g != "org.acme:orders:1.0" {
		t.Errorf("Global(deployment) = %v", g)
	}

	engine.Fire(ctx, ProcessEvent{Type: EventProcessStarted, ProcessID: "orders.approve"})

	entries, err := auditLog.Entries(ctx, "org.acme:orders:1.0")
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %+v, want engine.created and process.started", entries)
	}
	if entries[1].Event != string(EventProcessStarted) || entries[1].Identity != "alice" || entries[1].Subject != "orders.approve" {
		t.Errorf("audit entry = %+v", entries[1])
	}
	if !strings.Contains(logs.String(), "listener") || !strings.Contains(logs.String(), "process.started") {
		t.Errorf("declared listener did not log the event:\n%s", logs.String())
	}
}

func TestDescriptorItemsFactory_RejectsWrongTypes(t *testing.T) {
	t.Parallel()

	system := classloader.NewRegistry()
	RegisterHostTypes(system, log.NewWithOptions(&bytes.Buffer{}, log.Options{}))
	c, kb := testContainer(t, system)

	tests := []struct {
		name    string
		d       *descriptor.Descriptor
		wantErr error
	}{
		{
			name: "listener",
			d: &descriptor.Descriptor{EventListeners: []descriptor.ObjectModel{
				descriptor.NewObjectModel(objectmodel.KindReflection, ClassJSONMarshallingStrategy),
			}},
			wantErr: ErrNotAListener,
		},
		{
			name: "work item handler",
			d: &descriptor.Descriptor{WorkItemHandlers: []descriptor.NamedObjectModel{
				descriptor.NewNamedObjectModel("h", objectmodel.KindCUE, `"text"`),
			}},
			wantErr: ErrNotAWorkItemHandler,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items := &DescriptorItemsFactory{Descriptor: tt.d, Resolver: objectmodel.NewDefaultRegistry(), Loader: c.ClassLoader()}
			env, err := NewDefaultInMemoryBuilder().KnowledgeBase(kb).RegisterableItemsFactory(items).Get()
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if _, err := NewManager(context.Background(), descriptor.StrategySingleton, "d", env); !errors.Is(err, tt.wantErr) {
				t.Errorf("NewManager() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkerPool(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool(3, nil)
	var ran atomic.Int32
	for range 10 {
		if err := p.Submit(func(context.Context) { ran.Add(1) }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if err := p.Submit(func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_ = p.Close()

	if ran.Load() != 10 {
		t.Errorf("ran = %d, want 10", ran.Load())
	}
	if err := p.Submit(func(context.Context) {}); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Submit() after Close error = %v", err)
	}
}
