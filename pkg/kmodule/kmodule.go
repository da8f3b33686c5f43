// SPDX-License-Identifier: MPL-2.0

package kmodule

import (
	"archive/zip"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/kdeploy/kdeploy/pkg/cueutil"
)

const (
	// ModelPath is the location of the module model inside a kjar.
	ModelPath = "META-INF/kmodule.cue"

	// ArchiveSuffix is the file suffix of module archives.
	ArchiveSuffix = ".kjar"

	// JarSuffix is the file suffix of external jar archives.
	JarSuffix = ".jar"

	// DefaultKieBaseName names the implicit knowledge base of a module that
	// declares none, and the fallback when no default knowledge base exists.
	DefaultKieBaseName = "defaultKieBase"

	// SessionStateful and SessionStateless are the knowledge session types.
	SessionStateful  = "stateful"
	SessionStateless = "stateless"
)

var (
	//go:embed kmodule_schema.cue
	kmoduleSchema []byte
	modelSchema   = cueutil.MustCompile(kmoduleSchema, "#KModule")

	// ErrModelNotFound is returned when an archive has no META-INF/kmodule.cue.
	ErrModelNotFound = errors.New("module model not found")
)

type (
	// Model is the parsed META-INF/kmodule.cue of a module.
	Model struct {
		Release      *ReleaseID     `json:"release,omitempty"`
		KieBases     []KieBaseModel `json:"kbases,omitempty"`
		Dependencies []string       `json:"dependencies,omitempty"`
		Jars         []string       `json:"jars,omitempty"`
	}

	// KieBaseModel declares a knowledge base.
	KieBaseModel struct {
		Name     string            `json:"name"`
		Default  bool              `json:"default"`
		Packages []string          `json:"packages,omitempty"`
		Includes []string          `json:"includes,omitempty"`
		Sessions []KieSessionModel `json:"ksessions,omitempty"`
	}

	// KieSessionModel declares a knowledge session of a knowledge base.
	KieSessionModel struct {
		Name    string `json:"name"`
		Default bool   `json:"default"`
		Type    string `json:"type"`
	}

	// Archive is the in-memory content of a kjar.
	Archive struct {
		// Path is where the archive was read from (empty for synthetic archives).
		Path  string
		Files map[string][]byte
		Model *Model
	}
)

// ParseModel parses and validates a module model.
func ParseModel(data []byte, filename string) (*Model, error) {
	m, err := cueutil.Decode[Model](modelSchema, data, cueutil.WithFilename(filename))
	if err != nil {
		return nil, err
	}
	if len(m.KieBases) == 0 {
		m.KieBases = []KieBaseModel{{Name: DefaultKieBaseName, Default: true}}
	}
	return m, nil
}

// DependencyIDs parses the declared module dependencies.
func (m *Model) DependencyIDs() ([]ReleaseID, error) {
	return parseIDs(m.Dependencies)
}

// JarIDs parses the declared external jar dependencies.
func (m *Model) JarIDs() ([]ReleaseID, error) {
	return parseIDs(m.Jars)
}

// KieBase returns the knowledge base model with the given name.
func (m *Model) KieBase(name string) (KieBaseModel, bool) {
	i := slices.IndexFunc(m.KieBases, func(kb KieBaseModel) bool { return kb.Name == name })
	if i < 0 {
		return KieBaseModel{}, false
	}
	return m.KieBases[i], true
}

// DefaultSession returns the default session of the knowledge base, or the
// first one when none is flagged.
func (kb KieBaseModel) DefaultSession() (KieSessionModel, bool) {
	if len(kb.Sessions) == 0 {
		return KieSessionModel{}, false
	}
	if i := slices.IndexFunc(kb.Sessions, func(s KieSessionModel) bool { return s.Default }); i >= 0 {
		return kb.Sessions[i], true
	}
	return kb.Sessions[0], true
}

// Session returns the named session of the knowledge base.
func (kb KieBaseModel) Session(name string) (KieSessionModel, bool) {
	i := slices.IndexFunc(kb.Sessions, func(s KieSessionModel) bool { return s.Name == name })
	if i < 0 {
		return KieSessionModel{}, false
	}
	return kb.Sessions[i], true
}

// Contains reports whether a resource path falls into one of the knowledge
// base packages. A knowledge base without packages contains every resource.
func (kb KieBaseModel) Contains(path string) bool {
	if len(kb.Packages) == 0 {
		return true
	}
	dir := ""
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir = strings.ReplaceAll(path[:i], "/", ".")
	}
	for _, pkg := range kb.Packages {
		if pkg == "*" || pkg == dir || (strings.HasSuffix(pkg, ".*") && strings.HasPrefix(dir+".", strings.TrimSuffix(pkg, "*"))) {
			return true
		}
	}
	return false
}

func parseIDs(values []string) ([]ReleaseID, error) {
	ids := make([]ReleaseID, 0, len(values))
	for _, v := range values {
		id, err := ParseReleaseID(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReadArchive reads a kjar into memory and parses its model.
func ReadArchive(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open module archive %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", f.Name, path, err)
		}
		files[f.Name] = data
	}

	a, err := NewArchive(files)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.Path = path
	return a, nil
}

// NewArchive builds an archive from file contents and parses its model.
func NewArchive(files map[string][]byte) (*Archive, error) {
	data, ok := files[ModelPath]
	if !ok {
		return nil, ErrModelNotFound
	}
	model, err := ParseModel(data, ModelPath)
	if err != nil {
		return nil, err
	}
	return &Archive{Files: files, Model: model}, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
