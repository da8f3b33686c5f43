// SPDX-License-Identifier: MPL-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/mod/semver"

	"github.com/kdeploy/kdeploy/pkg/classloader"
	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

const (
	// RepositoryPathEnv overrides the default repository root.
	RepositoryPathEnv = "KDEPLOY_REPOSITORY"

	// DefaultRepositoryDir is the default subdirectory within ~/.kdeploy.
	DefaultRepositoryDir = "repository"
)

var (
	// ErrArtifactNotFound is returned when an archive is not installed.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrDependencyCycle is returned when module dependencies form a cycle.
	ErrDependencyCycle = errors.New("circular module dependency")
	// ErrNoRelease is returned when installing an archive whose model does not
	// pin its coordinates.
	ErrNoRelease = errors.New("module model has no release coordinates")
)

type (
	// Repository is a filesystem artifact repository with an in-memory module
	// cache. Archives live at
	// <root>/<group as path>/<artifact>/<version>/<artifact>-<version>.kjar and
	// external jars next to them with the .jar suffix.
	Repository struct {
		root   string
		system *classloader.Registry
		logger *log.Logger

		// mu guards the caches.
		mu         sync.Mutex
		modules    map[kmodule.ReleaseID]*kmodule.Module
		containers map[kmodule.ReleaseID]*kmodule.Container

		resolutions atomic.Int64
	}

	// Option configures a Repository.
	Option func(*Repository)

	// ArtifactNotFoundError reports a release that is not installed.
	ArtifactNotFoundError struct {
		ReleaseID kmodule.ReleaseID
		Path      string
	}

	// DependencyCycleError reports the release that closed a cycle.
	DependencyCycleError struct {
		ReleaseID kmodule.ReleaseID
	}
)

// Error implements the error interface.
func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact %s not found at %s", e.ReleaseID, e.Path)
}

// Unwrap returns ErrArtifactNotFound so callers can use errors.Is for programmatic detection.
func (e *ArtifactNotFoundError) Unwrap() error { return ErrArtifactNotFound }

// Error implements the error interface.
func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("circular module dependency detected: %s", e.ReleaseID)
}

// Unwrap returns ErrDependencyCycle so callers can use errors.Is for programmatic detection.
func (e *DependencyCycleError) Unwrap() error { return ErrDependencyCycle }

// WithSystemClasses sets the host type registry shared by every container.
func WithSystemClasses(reg *classloader.Registry) Option {
	return func(r *Repository) { r.system = reg }
}

// WithLogger sets the repository logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// New creates a repository rooted at root.
func New(root string, opts ...Option) *Repository {
	r := &Repository{
		root:       root,
		modules:    make(map[kmodule.ReleaseID]*kmodule.Module),
		containers: make(map[kmodule.ReleaseID]*kmodule.Container),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return r
}

// DefaultRoot returns the default repository root.
// It checks KDEPLOY_REPOSITORY first, then falls back to ~/.kdeploy/repository.
func DefaultRoot() (string, error) {
	return DefaultRootWith(os.Getenv)
}

// DefaultRootWith returns the default repository root using the provided
// getenv function.
func DefaultRootWith(getenv func(string) string) (string, error) {
	if envPath := getenv(RepositoryPathEnv); envPath != "" {
		return envPath, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".kdeploy", DefaultRepositoryDir), nil
}

// Root returns the repository root directory.
func (r *Repository) Root() string { return r.root }

// Resolutions returns how many archives have been loaded from disk.
func (r *Repository) Resolutions() int64 { return r.resolutions.Load() }

// ArtifactPath returns the on-disk location of a release with the given
// suffix (kmodule.ArchiveSuffix or kmodule.JarSuffix).
func (r *Repository) ArtifactPath(id kmodule.ReleaseID, suffix string) string {
	return filepath.Join(r.root, filepath.FromSlash(id.GroupID.Path()), id.ArtifactID.String(),
		id.Version.String(), fmt.Sprintf("%s-%s%s", id.ArtifactID, id.Version, suffix))
}

// ReleaseIDFromPath maps an archive path inside the repository back to its
// release id.
func (r *Repository) ReleaseIDFromPath(path string) (kmodule.ReleaseID, error) {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return kmodule.ReleaseID{}, fmt.Errorf("%s is outside repository %s", path, r.root)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 4 {
		return kmodule.ReleaseID{}, fmt.Errorf("%s does not follow the repository layout", path)
	}
	n := len(parts)
	artifact, version, file := parts[n-3], parts[n-2], parts[n-1]
	ext := filepath.Ext(file)
	if file != artifact+"-"+version+ext {
		return kmodule.ReleaseID{}, fmt.Errorf("%s does not follow the repository layout", path)
	}
	id := kmodule.NewReleaseID(strings.Join(parts[:n-3], "."), artifact, version)
	if ok, errs := id.IsValid(); !ok {
		return kmodule.ReleaseID{}, errors.Join(errs...)
	}
	return id, nil
}

// Versions lists the installed versions of a module, highest first.
// Semantic versions sort above anything else.
func (r *Repository) Versions(_ context.Context, group kmodule.GroupID, artifact kmodule.ArtifactID) ([]kmodule.Version, error) {
	dir := filepath.Join(r.root, filepath.FromSlash(group.Path()), artifact.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var versions []kmodule.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v := kmodule.Version(e.Name())
		id := kmodule.ReleaseID{GroupID: group, ArtifactID: artifact, Version: v}
		if _, err := os.Stat(r.ArtifactPath(id, kmodule.ArchiveSuffix)); err == nil {
			versions = append(versions, v)
		}
	}
	slices.SortFunc(versions, func(a, b kmodule.Version) int { return compareVersions(b, a) })
	return versions, nil
}

func compareVersions(a, b kmodule.Version) int {
	va, vb := "v"+string(a), "v"+string(b)
	okA, okB := semver.IsValid(va), semver.IsValid(vb)
	switch {
	case okA && okB:
		return semver.Compare(va, vb)
	case okA:
		return 1
	case okB:
		return -1
	default:
		return strings.Compare(string(a), string(b))
	}
}

// resolveVersion replaces LATEST with the highest installed version.
func (r *Repository) resolveVersion(ctx context.Context, id kmodule.ReleaseID) (kmodule.ReleaseID, error) {
	if !id.Version.IsLatest() {
		return id, nil
	}
	versions, err := r.Versions(ctx, id.GroupID, id.ArtifactID)
	if err != nil {
		return kmodule.ReleaseID{}, err
	}
	if len(versions) == 0 {
		return kmodule.ReleaseID{}, &ArtifactNotFoundError{ReleaseID: id, Path: r.ArtifactPath(id, kmodule.ArchiveSuffix)}
	}
	return id.WithVersion(versions[0]), nil
}
