// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"os"
	goruntime "runtime"

	"github.com/kdeploy/kdeploy/internal/bpmn"
	"github.com/kdeploy/kdeploy/internal/config"
	"github.com/kdeploy/kdeploy/internal/deploy"
	"github.com/kdeploy/kdeploy/internal/forms"
	"github.com/kdeploy/kdeploy/internal/issue"
	"github.com/kdeploy/kdeploy/internal/persistence"
	"github.com/kdeploy/kdeploy/internal/repository"
	"github.com/kdeploy/kdeploy/internal/runtime"
	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/descriptor"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// host is the assembled deployment pipeline of one CLI invocation.
type host struct {
	cfg     *config.Config
	logger  *log.Logger
	repo    *repository.Repository
	units   *persistence.Registry
	store   *persistence.DeploymentStore
	pool    *runtime.WorkerPool
	service *deploy.Service
}

// newHost builds the repository, persistence units and deployment service
// described by cfg. The deployment store lives in the persistence unit of the
// host default descriptor. Callers must close the host.
func newHost(ctx context.Context, cfg *config.Config, logger *log.Logger) (*host, error) {
	hostDescriptor, err := loadHostDescriptor(cfg)
	if err != nil {
		return nil, err
	}

	system := classloader.NewRegistry()
	runtime.RegisterHostTypes(system, logger)

	repo := repository.New(cfg.Repository.Path,
		repository.WithSystemClasses(system),
		repository.WithLogger(logger),
	)
	units := persistence.NewRegistry(
		persistence.WithUnits(cfg.Persistence.UnitMap()),
		persistence.WithDataDir(cfg.Persistence.DataDir),
		persistence.WithLogger(logger),
	)

	factory, err := units.GetOrCreate(ctx, hostDescriptor.PersistenceUnit)
	if err != nil {
		_ = units.Close()
		return nil, issue.NewErrorContext().
			WithOperation("open deployment store").
			WithResource(hostDescriptor.PersistenceUnit).
			WithSuggestions(
				"Check the DSN of the unit under persistence.units",
				"Make sure persistence.data_dir is writable",
			).
			WithIssue(issue.PersistenceUnitFailedId).
			Wrap(err).
			Build()
	}

	store := persistence.NewDeploymentStore(factory.DB)
	registry := deploy.NewRegistry(
		deploy.WithStore(store),
		deploy.WithRegistryLogger(logger),
	)
	pool := runtime.NewWorkerPool(goruntime.NumCPU(), logger)

	service := deploy.NewService(repo, bpmn.NewBuilder(bpmn.WithLogger(logger)), forms.NewRegistrar(), units,
		deploy.WithRegistry(registry),
		deploy.WithDescriptorManager(descriptor.NewManagerWithDefault(hostDescriptor)),
		deploy.WithDefaultMergeMode(cfg.Deployment.MergeMode),
		deploy.WithValidation(cfg.Deployment.ValidateProcesses),
		deploy.WithClasspathScan(cfg.Deployment.ScanClasspath),
		deploy.WithExecutor(pool),
		deploy.WithLogger(logger),
	)

	return &host{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		units:   units,
		store:   store,
		pool:    pool,
		service: service,
	}, nil
}

// withHost loads the configuration, builds a host, runs fn and closes the
// host. Failures are rendered through App.fail.
func (a *App) withHost(cmd *cobra.Command, fn func(ctx context.Context, h *host) error) error {
	ctx := cmd.Context()
	cfg, _, err := a.loadConfig(ctx)
	if err != nil {
		return a.fail(cmd, err)
	}
	h, err := newHost(ctx, cfg, a.newLogger(cfg))
	if err != nil {
		return a.fail(cmd, err)
	}

	runErr := fn(ctx, h)
	if err := h.close(); err != nil {
		h.logger.Warn("closing host failed", "err", err)
	}
	if runErr != nil {
		return a.fail(cmd, runErr)
	}
	return nil
}

// close stops the worker pool and closes every persistence unit.
func (h *host) close() error {
	return errors.Join(h.pool.Close(), h.units.Close())
}

// loadHostDescriptor returns the descriptor at the root of every hierarchy:
// the deployment.descriptor file when set, else the built-in default for
// the configured persistence unit and runtime strategy.
func loadHostDescriptor(cfg *config.Config) (*descriptor.Descriptor, error) {
	path := cfg.Deployment.Descriptor
	if path == "" {
		d := descriptor.Default(cfg.Persistence.DefaultUnit)
		if cfg.Deployment.RuntimeStrategy != "" {
			d.RuntimeStrategy = cfg.Deployment.RuntimeStrategy
		}
		return d, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("read host descriptor").
			WithResource(path).
			WithSuggestion("Verify deployment.descriptor points to an existing file").
			WithIssue(issue.InvalidDescriptorId).
			Wrap(err).
			Build()
	}
	d, err := descriptor.ParseFile(data, path)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("parse host descriptor").
			WithResource(path).
			WithIssue(issue.InvalidDescriptorId).
			Wrap(err).
			Build()
	}
	if d.PersistenceUnit == "" {
		d.PersistenceUnit = cfg.Persistence.DefaultUnit
	}
	if d.PersistenceUnit == "" {
		d.PersistenceUnit = descriptor.DefaultPersistenceUnit
	}
	return d, nil
}
