// SPDX-License-Identifier: MPL-2.0

package classloader

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"sync"
)

type (
	// Resources is a source of class files, typically a module.
	Resources interface {
		// Name identifies the source in class metadata and errors.
		Name() string
		// FileNames lists every path in the source.
		FileNames() []string
		// Bytes returns the content of one path.
		Bytes(path string) ([]byte, error)
	}

	// JarLoader loads classes from external jar archives. It plays the role
	// of the parent loader of a module container.
	JarLoader struct {
		urls []string

		once     sync.Once
		index    map[string]string // class path -> jar path
		indexErr error
	}

	// Loader is the class loader of one module container.
	Loader struct {
		system    *Registry
		parent    *JarLoader
		resources []Resources

		mu    sync.Mutex
		cache map[string]*Class
	}
)

// NewJarLoader creates a loader over the given jar archive paths.
func NewJarLoader(urls ...string) *JarLoader {
	return &JarLoader{urls: slices.Clone(urls)}
}

// URLs returns the jar archive paths backing the loader.
func (j *JarLoader) URLs() []string {
	if j == nil {
		return nil
	}
	return slices.Clone(j.urls)
}

// buildIndex maps every class entry to the first jar that contains it.
func (j *JarLoader) buildIndex() {
	j.index = make(map[string]string)
	for _, url := range j.urls {
		zr, err := zip.OpenReader(url)
		if err != nil {
			j.indexErr = fmt.Errorf("open jar %s: %v", url, err) //nolint:errorlint // reported as linkage, not as a missing class
			return
		}
		for _, f := range zr.File {
			if !IsClassFile(f.Name) {
				continue
			}
			if _, seen := j.index[f.Name]; !seen {
				j.index[f.Name] = url
			}
		}
		_ = zr.Close() // read-only archive
	}
}

// find returns the bytes of a class entry and the jar it came from.
func (j *JarLoader) find(path string) ([]byte, string, error) {
	if j == nil || len(j.urls) == 0 {
		return nil, "", fs.ErrNotExist
	}
	j.once.Do(j.buildIndex)
	if j.indexErr != nil {
		return nil, "", j.indexErr
	}
	url, ok := j.index[path]
	if !ok {
		return nil, "", fs.ErrNotExist
	}
	data, err := ReadJarEntry(url, path)
	return data, url, err
}

// ReadJarEntry reads a single entry from a jar archive.
func ReadJarEntry(jarPath, entry string) ([]byte, error) {
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return nil, fmt.Errorf("open jar %s: %w", jarPath, err)
	}
	defer func() { _ = zr.Close() }()

	f, err := zr.Open(entry)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// NewLoader creates a container class loader. system and parent may be nil.
func NewLoader(system *Registry, parent *JarLoader, resources ...Resources) *Loader {
	return &Loader{
		system:    system,
		parent:    parent,
		resources: slices.Clone(resources),
		cache:     make(map[string]*Class),
	}
}

// Parent returns the jar loader backing external dependencies, or nil.
func (l *Loader) Parent() *JarLoader { return l.parent }

// System returns the host type registry, or nil.
func (l *Loader) System() *Registry { return l.system }

// LoadClass resolves a class by dotted name. Host types win over jar classes,
// and jar classes win over module classes.
func (l *Loader) LoadClass(name string) (*Class, error) {
	l.mu.Lock()
	if c, ok := l.cache[name]; ok {
		l.mu.Unlock()
		return c, nil
	}
	l.mu.Unlock()

	c, err := l.findClass(name)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.cache[name]; ok {
		return existing, nil
	}
	l.cache[name] = c
	return c, nil
}

func (l *Loader) findClass(name string) (*Class, error) {
	if l.system != nil {
		if c, ok := l.system.Lookup(name); ok {
			return c, nil
		}
	}

	path := PathFromClassName(name)

	data, jar, err := l.parent.find(path)
	switch {
	case err == nil:
		return define(name, jar, data)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, &LinkageError{Name: name, Source: jar, Cause: err}
	}

	for _, res := range l.resources {
		if !slices.Contains(res.FileNames(), path) {
			continue
		}
		data, err := res.Bytes(path)
		if err != nil {
			return nil, &LinkageError{Name: name, Source: res.Name(), Cause: err}
		}
		return define(name, res.Name(), data)
	}

	return nil, &NotFoundError{Name: name}
}

func define(name, source string, data []byte) (*Class, error) {
	cf, err := ParseClassFile(data)
	if err != nil {
		return nil, &LinkageError{Name: name, Source: source, Cause: err}
	}
	if cf.Name != name {
		return nil, &LinkageError{
			Name:   name,
			Source: source,
			Cause:  fmt.Errorf("wrong name: %s", cf.Name),
		}
	}
	return &Class{
		Name:        cf.Name,
		SuperName:   cf.SuperName,
		Annotations: cf.Annotations,
		Source:      source,
	}, nil
}
