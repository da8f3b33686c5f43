// SPDX-License-Identifier: MPL-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// ResolveArtifact returns the container of a release, loading the archive
// and its transitive module dependencies on first use. LATEST resolves to the
// highest installed version.
func (r *Repository) ResolveArtifact(ctx context.Context, id kmodule.ReleaseID) (*kmodule.Container, error) {
	id, err := r.resolveVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.containers[id]; ok {
		return c, nil
	}

	m, err := r.loadModule(ctx, id, make(map[kmodule.ReleaseID]bool))
	if err != nil {
		return nil, err
	}
	c := kmodule.NewContainer(m, r.system)
	r.containers[id] = c
	r.logger.Debug("resolved module", "release", id, "dependencies", len(m.TransitiveDependencies()))
	return c, nil
}

// loadModule loads one module and, recursively, its dependencies. inProgress
// holds the releases on the current dependency path. Callers hold r.mu.
func (r *Repository) loadModule(ctx context.Context, id kmodule.ReleaseID, inProgress map[kmodule.ReleaseID]bool) (*kmodule.Module, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if inProgress[id] {
		return nil, &DependencyCycleError{ReleaseID: id}
	}
	if m, ok := r.modules[id]; ok {
		return m, nil
	}

	inProgress[id] = true
	defer delete(inProgress, id)

	path := r.ArtifactPath(id, kmodule.ArchiveSuffix)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ArtifactNotFoundError{ReleaseID: id, Path: path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	archive, err := kmodule.ReadArchive(path)
	if err != nil {
		return nil, err
	}
	r.resolutions.Add(1)

	depIDs, err := archive.Model.DependencyIDs()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	deps := make([]*kmodule.Module, 0, len(depIDs))
	for _, depID := range depIDs {
		resolved, err := r.resolveVersion(ctx, depID)
		if err != nil {
			return nil, fmt.Errorf("dependency %s of %s: %w", depID, id, err)
		}
		dep, err := r.loadModule(ctx, resolved, inProgress)
		if err != nil {
			return nil, fmt.Errorf("dependency %s of %s: %w", depID, id, err)
		}
		deps = append(deps, dep)
	}

	jarIDs, err := archive.Model.JarIDs()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	jars := make([]string, 0, len(jarIDs))
	for _, jarID := range jarIDs {
		jarPath := r.ArtifactPath(jarID, kmodule.JarSuffix)
		if _, err := os.Stat(jarPath); err != nil {
			return nil, fmt.Errorf("jar dependency of %s: %w", id, &ArtifactNotFoundError{ReleaseID: jarID, Path: jarPath})
		}
		jars = append(jars, jarPath)
	}

	m := kmodule.NewModule(id, archive, deps, jars)
	r.modules[id] = m
	return m, nil
}

// RemoveArtifact evicts a release from the in-memory caches. Installed files
// stay on disk. Releases that depend on the evicted module are evicted as
// well.
func (r *Repository) RemoveArtifact(ctx context.Context, id kmodule.ReleaseID) error {
	id, err := r.resolveVersion(ctx, id)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return nil
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.modules, id)
	delete(r.containers, id)
	for mid, m := range r.modules {
		for _, dep := range m.TransitiveDependencies() {
			if dep.ReleaseID() == id {
				delete(r.modules, mid)
				delete(r.containers, mid)
				break
			}
		}
	}
	r.logger.Debug("evicted module", "release", id)
	return nil
}

// Install copies a module archive into the repository layout. The archive
// must pin its coordinates in META-INF/kmodule.cue. Any cached copy of the
// release is evicted.
func (r *Repository) Install(ctx context.Context, path string) (kmodule.ReleaseID, error) {
	archive, err := kmodule.ReadArchive(path)
	if err != nil {
		return kmodule.ReleaseID{}, err
	}
	if archive.Model.Release == nil {
		return kmodule.ReleaseID{}, fmt.Errorf("%s: %w", path, ErrNoRelease)
	}
	id := *archive.Model.Release
	if ok, errs := id.IsValid(); !ok {
		return kmodule.ReleaseID{}, fmt.Errorf("%s: %w", path, errors.Join(errs...))
	}
	if id.Version.IsLatest() {
		return kmodule.ReleaseID{}, fmt.Errorf("%s: cannot install version %s", path, kmodule.Latest)
	}

	if err := r.installFile(path, r.ArtifactPath(id, kmodule.ArchiveSuffix)); err != nil {
		return kmodule.ReleaseID{}, err
	}
	if err := r.RemoveArtifact(ctx, id); err != nil {
		return kmodule.ReleaseID{}, err
	}
	r.logger.Info("installed module", "release", id)
	return id, nil
}

// InstallJar copies an external jar into the repository layout under id.
func (r *Repository) InstallJar(_ context.Context, id kmodule.ReleaseID, path string) error {
	if ok, errs := id.IsValid(); !ok {
		return errors.Join(errs...)
	}
	if err := r.installFile(path, r.ArtifactPath(id, kmodule.JarSuffix)); err != nil {
		return err
	}
	r.logger.Info("installed jar", "release", id)
	return nil
}

func (r *Repository) installFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// copyFile copies a single file.
func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, srcInfo.Mode())
}
