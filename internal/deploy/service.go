// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/internal/classpath"
	"github.com/kdeploy/kdeploy/internal/objectmodel"
	"github.com/kdeploy/kdeploy/internal/resource"
	"github.com/kdeploy/kdeploy/internal/runtime"
	"github.com/kdeploy/kdeploy/pkg/descriptor"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// DefaultIdentity is the identity stamped on process events when no identity
// provider is configured.
const DefaultIdentity = "system"

type (
	// Service deploys module units into the host. Deploy and Undeploy for the
	// same unit identifier must not run concurrently.
	Service struct {
		repo      ArtifactRepository
		builder   DefinitionBuilder
		forms     FormRegistrar
		factories FactoryRegistry

		resolvers    *objectmodel.Registry
		descriptors  *descriptor.Manager
		merger       descriptor.Merger
		classifier   *resource.Classifier
		scanner      ClasspathScanner
		registry     *Registry
		executor     runtime.Executor
		identity     runtime.IdentityProvider
		auditBuilder runtime.AuditEventBuilder

		mergeMode     descriptor.MergeMode
		validate      bool
		scanClasspath bool
		logger        *log.Logger
	}

	// Option configures a Service.
	Option func(*Service)
)

// WithResolvers sets the object model resolver registry.
func WithResolvers(r *objectmodel.Registry) Option {
	return func(s *Service) { s.resolvers = r }
}

// WithDescriptorManager sets the descriptor hierarchy manager.
func WithDescriptorManager(m *descriptor.Manager) Option {
	return func(s *Service) { s.descriptors = m }
}

// WithMerger replaces the descriptor merger.
func WithMerger(m descriptor.Merger) Option {
	return func(s *Service) { s.merger = m }
}

// WithClassifier replaces the resource classifier.
func WithClassifier(c *resource.Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithScanner replaces the classpath scanner.
func WithScanner(sc ClasspathScanner) Option {
	return func(s *Service) { s.scanner = sc }
}

// WithRegistry sets the deployment registry.
func WithRegistry(r *Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithExecutor exposes an executor to deployments as the ExecutorService entry.
func WithExecutor(e runtime.Executor) Option {
	return func(s *Service) { s.executor = e }
}

// WithIdentityProvider sets the identity stamped on process events.
func WithIdentityProvider(p runtime.IdentityProvider) Option {
	return func(s *Service) { s.identity = p }
}

// WithAuditEventBuilder replaces the audit event builder.
func WithAuditEventBuilder(b runtime.AuditEventBuilder) Option {
	return func(s *Service) { s.auditBuilder = b }
}

// WithDefaultMergeMode sets the merge mode of units that do not choose one.
func WithDefaultMergeMode(m descriptor.MergeMode) Option {
	return func(s *Service) { s.mergeMode = m }
}

// WithValidation toggles process validation.
func WithValidation(validate bool) Option {
	return func(s *Service) { s.validate = validate }
}

// WithClasspathScan toggles the scan of external jars for annotated classes.
func WithClasspathScan(scan bool) Option {
	return func(s *Service) { s.scanClasspath = scan }
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a deployment service over its collaborators.
func NewService(repo ArtifactRepository, builder DefinitionBuilder, forms FormRegistrar, factories FactoryRegistry, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		builder:       builder,
		forms:         forms,
		factories:     factories,
		resolvers:     objectmodel.NewDefaultRegistry(),
		descriptors:   descriptor.NewManager(""),
		merger:        descriptor.FoldMerger{},
		classifier:    resource.Default(),
		identity:      runtime.StaticIdentity(DefaultIdentity),
		auditBuilder:  runtime.DefaultAuditEventBuilder{},
		mergeMode:     descriptor.MergeCollections,
		validate:      true,
		scanClasspath: true,
		logger:        log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(WithRegistryLogger(s.logger))
	}
	if s.scanner == nil {
		s.scanner = classpath.NewScanner(classpath.WithLogger(s.logger))
	}
	return s
}

// Registry returns the deployment registry.
func (s *Service) Registry() *Registry { return s.registry }

// Deploy resolves, assembles and registers a unit. Every failure is returned
// as a *DeploymentError; on failure nothing is registered and the unit is not
// marked deployed.
func (s *Service) Deploy(ctx context.Context, u Unit) (*DeployedUnit, error) {
	id := u.Identifier()
	du, err := s.deploy(ctx, u)
	if err != nil {
		s.logger.Error("deployment failed", "unit", id, "err", err)
		return nil, &DeploymentError{UnitID: id, Cause: err}
	}
	s.logger.Info("deployed", "unit", id, "assets", len(du.Assets()), "classes", len(du.ClassNames()))
	return du, nil
}

func (s *Service) deploy(ctx context.Context, u Unit) (*DeployedUnit, error) {
	unit, ok := u.(*ModuleUnit)
	if !ok {
		return nil, &InvalidUnitKindError{Kind: fmt.Sprintf("%T", u)}
	}
	id := unit.Identifier()
	if s.registry.IsDeployed(id) {
		return nil, fmt.Errorf("%s: %w", id, ErrAlreadyDeployed)
	}

	c, err := s.resolve(ctx, unit)
	if err != nil {
		return nil, err
	}
	kbase, err := knowledgeBase(c, unit)
	if err != nil {
		return nil, err
	}

	du := NewDeployedUnit(unit)
	formsTouched := false
	cleanup := func() {
		if formsTouched {
			s.forms.UnregisterAll(id)
		}
	}

	// Only the module declaring the knowledge base and its dependencies deploy.
	for _, mod := range append([]*kmodule.Module{kbase.Module}, kbase.Module.TransitiveDependencies()...) {
		touched, err := s.processResources(c, mod, du)
		formsTouched = formsTouched || touched
		if err != nil {
			cleanup()
			return nil, err
		}
	}
	if s.scanClasspath && len(c.Module().AllJarDependencies()) > 0 {
		if err := s.processClasspath(ctx, c, du); err != nil {
			cleanup()
			return nil, err
		}
	}

	d, err := s.effectiveDescriptor(c, unit)
	if err != nil {
		cleanup()
		return nil, err
	}
	env, err := s.buildEnvironment(ctx, c, kbase, d, id)
	if err != nil {
		cleanup()
		return nil, err
	}

	du.setProcessRoles(d.RolesFor(descriptor.RoleTypeProcess))
	for _, name := range d.Classes {
		class, err := c.ClassLoader().LoadClass(name)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("class %s not found in the project: %w", name, err)
		}
		du.AddClass(class)
	}

	manager, err := runtime.NewManager(ctx, d.RuntimeStrategy, id, env, runtime.WithManagerLogger(s.logger))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create runtime manager: %w", err)
	}
	du.SetRuntimeManager(manager)
	du.SetActive(true)

	if err := s.registry.commit(ctx, du, c.ReleaseID().String(), manager.Strategy().String()); err != nil {
		if cerr := manager.Close(ctx); cerr != nil {
			s.logger.Warn("closing runtime manager failed", "unit", id, "err", cerr)
		}
		cleanup()
		return nil, err
	}
	unit.setDeployed(true)
	return du, nil
}

// resolve returns the unit's container, resolving and caching it on first use.
func (s *Service) resolve(ctx context.Context, u *ModuleUnit) (*kmodule.Container, error) {
	if c := u.Container(); c != nil {
		return c, nil
	}
	c, err := s.repo.ResolveArtifact(ctx, u.ReleaseID())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", u.ReleaseID(), err)
	}
	u.setContainer(c)
	return c, nil
}

// knowledgeBase picks the unit's knowledge base: the named one, else the
// container default, else the implicit default name.
func knowledgeBase(c *kmodule.Container, u *ModuleUnit) (*kmodule.KieBase, error) {
	name := u.KieBaseName
	if name == "" {
		kb, ok, err := c.DefaultKieBase()
		if err != nil {
			return nil, err
		}
		if ok {
			return kb, nil
		}
		name = kmodule.DefaultKieBaseName
	}
	return c.KieBase(name)
}

// effectiveDescriptor merges the descriptor hierarchy for a unit and caches
// the result on it. An explicit descriptor of an undeployed unit takes
// precedence over the hierarchy.
func (s *Service) effectiveDescriptor(c *kmodule.Container, u *ModuleUnit) (*descriptor.Descriptor, error) {
	current := u.Descriptor()
	if current != nil && u.Deployed() {
		return current, nil
	}

	hierarchy, err := s.descriptors.Hierarchy(c)
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}
	if current != nil {
		hierarchy = append([]*descriptor.Descriptor{current}, hierarchy...)
	}

	mode := u.MergeMode
	if mode == "" {
		mode = s.mergeMode
	}
	merged, err := s.merger.Merge(hierarchy, mode)
	if err != nil {
		return nil, fmt.Errorf("merge descriptors: %w", err)
	}
	if ok, errs := merged.IsValid(); !ok {
		return nil, fmt.Errorf("merged descriptor: %w", errs[0])
	}
	u.setDescriptor(merged)
	return merged, nil
}

// EffectiveDescriptor resolves a unit's module and returns its merged
// descriptor without deploying it.
func (s *Service) EffectiveDescriptor(ctx context.Context, u *ModuleUnit) (*descriptor.Descriptor, error) {
	c, err := s.resolve(ctx, u)
	if err != nil {
		return nil, err
	}
	d, err := s.effectiveDescriptor(c, u)
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Undeploy removes a deployed unit: its runtime manager is closed, its forms
// are dropped and its artifact is evicted from the repository cache.
func (s *Service) Undeploy(ctx context.Context, u Unit) error {
	unit, ok := u.(*ModuleUnit)
	if !ok {
		return &InvalidUnitKindError{Kind: fmt.Sprintf("%T", u)}
	}
	id := unit.Identifier()
	if _, err := s.registry.remove(ctx, id); err != nil {
		return err
	}
	s.forms.UnregisterAll(id)
	if err := s.repo.RemoveArtifact(ctx, unit.ReleaseID()); err != nil {
		s.logger.Warn("evicting artifact failed", "unit", id, "err", err)
	}
	s.logger.Info("undeployed", "unit", id)
	return nil
}

// Activate marks a deployed unit active. It returns false for unknown ids.
func (s *Service) Activate(ctx context.Context, id string) bool {
	return s.registry.setActive(ctx, id, true)
}

// Deactivate marks a deployed unit inactive. It returns false for unknown ids.
func (s *Service) Deactivate(ctx context.Context, id string) bool {
	return s.registry.setActive(ctx, id, false)
}

// Redeploy undeploys a deployed unit and deploys a fresh unit with the same
// coordinates and settings, keeping its active flag. The fresh unit reads the
// module descriptors again.
func (s *Service) Redeploy(ctx context.Context, id string) (*DeployedUnit, error) {
	du, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotDeployed)
	}
	old, ok := du.Unit().(*ModuleUnit)
	if !ok {
		return nil, &InvalidUnitKindError{Kind: fmt.Sprintf("%T", du.Unit())}
	}
	if err := s.Undeploy(ctx, old); err != nil {
		return nil, err
	}
	next, err := s.Deploy(ctx, old.Fresh())
	if err != nil {
		s.logger.Error("redeploy failed, unit is no longer deployed", "unit", id, "err", err)
		return nil, err
	}
	if !du.Active() {
		s.Deactivate(ctx, id)
	}
	return next, nil
}
