// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"fmt"

	"github.com/kdeploy/kdeploy/internal/objectmodel"
	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/internal/runtime"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// buildEnvironment assembles the runtime environment of a deployment from
// its merged descriptor.
func (s *Service) buildEnvironment(ctx context.Context, c *kmodule.Container, kbase *kmodule.KieBase, d *descriptor.Descriptor, id string) (*runtime.Environment, error) {
	var (
		b       *runtime.Builder
		factory *persistence.Factory
		err     error
	)
	if d.PersistenceMode == descriptor.PersistenceNone {
		b = runtime.NewDefaultInMemoryBuilder()
		if d.PersistenceUnit != "" {
			factory, err = s.factories.GetOrCreate(ctx, d.PersistenceUnit)
		}
	} else {
		b = runtime.NewDefaultBuilder()
		factory, err = s.factories.GetOrCreate(ctx, d.PersistenceUnit)
	}
	if err != nil {
		return nil, fmt.Errorf("entity manager factory %q: %w", d.PersistenceUnit, err)
	}

	loader := c.ClassLoader()
	params := objectmodel.ContextParams(factory, loader)
	b.KnowledgeBase(kbase).ClassLoader(loader).EntityManagerFactory(factory)

	for _, entry := range d.EnvironmentEntries {
		v, err := s.resolvers.Resolve(entry.Model(), loader, params)
		if err != nil {
			return nil, fmt.Errorf("environment entry %s: %w", entry.Name, err)
		}
		b.AddEnvironmentEntry(entry.Name, v)
	}
	for _, entry := range d.Configuration {
		v, err := s.resolvers.Resolve(entry.Model(), loader, params)
		if err != nil {
			return nil, fmt.Errorf("configuration entry %s: %w", entry.Name, err)
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("configuration entry %s is %T: %w", entry.Name, v, ErrConfigurationNotString)
		}
		b.AddConfiguration(entry.Name, str)
	}

	strategies := make([]runtime.MarshallingStrategy, 0, len(d.MarshallingStrategies)+1)
	for _, model := range d.MarshallingStrategies {
		v, err := s.resolvers.Resolve(model, loader, params)
		if err != nil {
			return nil, fmt.Errorf("marshalling strategy %s: %w", model, err)
		}
		strategy, ok := v.(runtime.MarshallingStrategy)
		if !ok {
			return nil, fmt.Errorf("marshalling strategy %s is %T: %w", model, v, ErrNotAMarshallingStrategy)
		}
		strategies = append(strategies, strategy)
	}
	strategies = append(strategies, runtime.NewPlaceholderResolverStrategy())
	b.AddEnvironmentEntry(runtime.EnvObjectMarshallingStrategies, strategies)

	b.AddEnvironmentEntry(runtime.EnvKieDeploymentDescriptor, d)
	b.AddEnvironmentEntry(runtime.EnvKieContainer, c)
	if s.executor != nil {
		b.AddEnvironmentEntry(runtime.EnvExecutorService, s.executor)
	}

	audit, err := s.auditListener(ctx, d, id)
	if err != nil {
		return nil, err
	}
	b.RegisterableItemsFactory(&runtime.DescriptorItemsFactory{
		Descriptor: d,
		Resolver:   s.resolvers,
		Loader:     loader,
		Params:     params,
		Identity:   s.identity,
		Audit:      audit,
	})

	return b.Get()
}

// auditListener returns the audit listener for the descriptor's audit mode,
// or nil when auditing is off.
func (s *Service) auditListener(ctx context.Context, d *descriptor.Descriptor, id string) (*runtime.AuditListener, error) {
	var sink runtime.AuditSink
	switch d.AuditMode {
	case descriptor.AuditJPA:
		unit := d.AuditPersistenceUnit
		if unit == "" {
			unit = d.PersistenceUnit
		}
		factory, err := s.factories.GetOrCreate(ctx, unit)
		if err != nil {
			return nil, fmt.Errorf("audit persistence unit %q: %w", unit, err)
		}
		sink = runtime.StoreAuditSink{Log: &persistence.AuditLog{DB: factory.DB}}
	case descriptor.AuditJMS:
		sink = runtime.LogAuditSink{Logger: s.logger.With("unit", id)}
	default:
		return nil, nil
	}
	return runtime.NewAuditListener(s.auditBuilder, sink, s.logger), nil
}
