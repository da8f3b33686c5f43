// SPDX-License-Identifier: MPL-2.0

// Package watch redeploys deployed units when their module archives change
// in the artifact repository.
//
// Filesystem events under the repository root are filtered by glob pattern
// and coalesced over a debounce window. Each changed archive is mapped to its
// release id, and every deployed unit of that release is redeployed once.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/kdeploy/kdeploy/pkg/kmodule"
)

// DefaultDebounce is the quiet period used when Config.Debounce is not set.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrAlreadyRunning is returned when Run is called a second time.
	ErrAlreadyRunning = errors.New("watch: Run called more than once")
	// ErrNoReleaseResolver is returned when Config.ReleaseID is nil.
	ErrNoReleaseResolver = errors.New("watch: release id resolver is required")

	defaultPatterns = []string{"**/*.kjar"}
	defaultIgnores  = []string{"**/.*", "**/*.tmp", "**/*.part"}
)

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Root is the repository root to watch.
		Root string

		// Patterns select the archives that trigger redeployment, relative to
		// Root. Empty means "**/*.kjar".
		Patterns []string

		// Ignore adds patterns to the built-in ignores (dot files and
		// partial downloads).
		Ignore []string

		// Debounce is the quiet period after the last event. Zero or negative
		// values fall back to DefaultDebounce.
		Debounce time.Duration

		// ReleaseID maps an archive path to its release.
		ReleaseID func(path string) (kmodule.ReleaseID, error)

		// Deployed lists the identifiers of the deployed units.
		Deployed func() []string

		// Redeploy redeploys one unit.
		Redeploy func(ctx context.Context, id string) error

		Logger *log.Logger
	}

	// Watcher monitors a repository and redeploys affected units. Run must be
	// called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		patterns []string
		ignores  []string
		debounce time.Duration
		root     string
		logger   *log.Logger
		started  atomic.Bool
	}
)

// New creates a Watcher and registers every directory under Config.Root.
func New(cfg Config) (*Watcher, error) {
	if cfg.ReleaseID == nil {
		return nil, ErrNoReleaseResolver
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}

	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	if err := validatePatterns(patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		patterns: slices.Clone(patterns),
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: debounce,
		root:     root,
		logger:   logger,
	}
	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Warn("close after init failure", "err", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Run processes filesystem events until ctx is cancelled. It returns nil on
// cancellation and an error when the watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire skips while a previous batch is still redeploying and retries
	// after another debounce period.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if len(changed) > 0 {
			w.redeploy(ctx, changed)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify", "err", err)
		}
	}()

	w.logger.Info("watching repository", "root", w.root, "patterns", strings.Join(w.patterns, ","))
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Op == fsnotify.Chmod {
				continue
			}
			candidates := []string{evt.Name}
			if evt.Has(fsnotify.Create) {
				candidates = append(candidates, w.addNewDir(evt.Name)...)
			}

			mu.Lock()
			for _, path := range candidates {
				rel, err := filepath.Rel(w.root, path)
				if err != nil || w.isIgnored(rel) || !w.matches(rel) {
					continue
				}
				pending[path] = struct{}{}
				if timer == nil {
					timer = time.AfterFunc(w.debounce, fire)
				} else {
					timer.Reset(w.debounce)
				}
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "err", err)
		}
	}
}

// redeploy maps changed archives to releases and redeploys every deployed
// unit of those releases.
func (w *Watcher) redeploy(ctx context.Context, changed []string) {
	releases := map[string]bool{}
	for _, path := range changed {
		id, err := w.cfg.ReleaseID(path)
		if err != nil {
			w.logger.Warn("ignoring changed file", "path", path, "err", err)
			continue
		}
		releases[id.String()] = true
	}

	if w.cfg.Deployed == nil || w.cfg.Redeploy == nil {
		return
	}
	for _, id := range Affected(w.cfg.Deployed(), releases) {
		if ctx.Err() != nil {
			return
		}
		w.logger.Info("redeploying", "unit", id)
		if err := w.cfg.Redeploy(ctx, id); err != nil {
			w.logger.Error("redeploy failed", "unit", id, "err", err)
		}
	}
}

// Affected returns the unit identifiers, sorted, whose release is in releases.
// A unit identifier is "group:artifact:version" optionally followed by
// ":kbase[:ksession]".
func Affected(units []string, releases map[string]bool) []string {
	var out []string
	for _, id := range units {
		parts := strings.SplitN(id, ":", 4)
		if len(parts) < 3 {
			continue
		}
		if releases[strings.Join(parts[:3], ":")] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (w *Watcher) addDirectories() error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("skipping inaccessible path", "path", path, "err", walkErr)
			return nil //nolint:nilerr // keep watching the rest of the tree
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(w.root, path); relErr == nil && rel != "." && w.isIgnored(rel) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk repository: %w", err)
	}
	return nil
}

// addNewDir extends the watch to a directory created after startup, such as
// the version directory of a newly installed release, and returns the files
// already inside it. Those may have landed before the watch was registered.
func (w *Watcher) addNewDir(path string) []string {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil
	}
	var files []string
	_ = filepath.WalkDir(path, func(sub string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // best effort
		}
		rel, relErr := filepath.Rel(w.root, sub)
		if relErr != nil || w.isIgnored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, sub)
			return nil
		}
		if addErr := w.fsw.Add(sub); addErr != nil {
			w.logger.Warn("add new directory", "path", sub, "err", addErr)
			return filepath.SkipDir
		}
		return nil
	})
	return files
}

func (w *Watcher) isIgnored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) matches(rel string) bool {
	return matchAny(w.patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, pat, doublestar.ErrBadPattern)
		}
	}
	return nil
}
