// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"archive/zip"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

type (
	// Kjar builds module archive content for tests.
	Kjar struct {
		group, artifact, version string

		kbases []string
		deps   []string
		jars   []string
		files  map[string][]byte
	}
)

// NewKjar starts a module archive for the given coordinates.
func NewKjar(group, artifact, version string) *Kjar {
	return &Kjar{
		group:    group,
		artifact: artifact,
		version:  version,
		files:    make(map[string][]byte),
	}
}

// KieBase declares a knowledge base in the module model.
func (k *Kjar) KieBase(name string, isDefault bool, packages ...string) *Kjar {
	quoted := make([]string, len(packages))
	for i, p := range packages {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	k.kbases = append(k.kbases, fmt.Sprintf("{name: %q, default: %t, packages: [%s]}",
		name, isDefault, strings.Join(quoted, ", ")))
	return k
}

// DependsOn declares a module dependency ("group:artifact:version").
func (k *Kjar) DependsOn(gav string) *Kjar {
	k.deps = append(k.deps, gav)
	return k
}

// Jar declares an external jar dependency ("group:artifact:version").
func (k *Kjar) Jar(gav string) *Kjar {
	k.jars = append(k.jars, gav)
	return k
}

// File adds a text file.
func (k *Kjar) File(path, content string) *Kjar {
	k.files[path] = []byte(content)
	return k
}

// Bytes adds a binary file.
func (k *Kjar) Bytes(path string, content []byte) *Kjar {
	k.files[path] = content
	return k
}

// Class adds an encoded class file for the dotted class name.
func (k *Kjar) Class(name string, annotations ...string) *Kjar {
	path := strings.ReplaceAll(name, ".", "/") + ".class"
	k.files[path] = ClassBytes(name, annotations...)
	return k
}

// Process adds a BPMN2 process definition.
func (k *Kjar) Process(path, id string) *Kjar {
	return k.File(path, BPMNProcess(id, id, "1.0"))
}

// Model renders META-INF/kmodule.cue.
func (k *Kjar) Model() string {
	var b strings.Builder
	fmt.Fprintf(&b, "release: {group: %q, artifact: %q, version: %q}\n", k.group, k.artifact, k.version)
	if len(k.kbases) > 0 {
		fmt.Fprintf(&b, "kbases: [%s]\n", strings.Join(k.kbases, ", "))
	}
	if len(k.deps) > 0 {
		fmt.Fprintf(&b, "dependencies: [%s]\n", quoteAll(k.deps))
	}
	if len(k.jars) > 0 {
		fmt.Fprintf(&b, "jars: [%s]\n", quoteAll(k.jars))
	}
	return b.String()
}

// Files returns the archive content including the module model.
func (k *Kjar) Files() map[string][]byte {
	files := maps.Clone(k.files)
	if _, ok := files["META-INF/kmodule.cue"]; !ok {
		files["META-INF/kmodule.cue"] = []byte(k.Model())
	}
	return files
}

// Write writes the archive to path.
func (k *Kjar) Write(t testing.TB, path string) {
	t.Helper()
	MustWriteZip(t, path, k.Files())
}

// Install writes the archive into a repository root using its layout.
func (k *Kjar) Install(t testing.TB, root string) string {
	t.Helper()
	path := RepositoryPath(root, k.group, k.artifact, k.version, ".kjar")
	k.Write(t, path)
	return path
}

// RepositoryPath returns <root>/<group as path>/<artifact>/<version>/<artifact>-<version><suffix>.
func RepositoryPath(root, group, artifact, version, suffix string) string {
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(group, ".", "/")),
		artifact, version, artifact+"-"+version+suffix)
}

// InstallJar writes an external jar holding the given classes into a
// repository root. annotated maps class names to their annotations.
func InstallJar(t testing.TB, root, group, artifact, version string, annotated map[string][]string) string {
	t.Helper()
	files := make(map[string][]byte, len(annotated))
	for name, annotations := range annotated {
		files[strings.ReplaceAll(name, ".", "/")+".class"] = ClassBytes(name, annotations...)
	}
	path := RepositoryPath(root, group, artifact, version, ".jar")
	MustWriteZip(t, path, files)
	return path
}

// MustWriteZip writes a zip archive with deterministic entry order.
func MustWriteZip(t testing.TB, path string, files map[string][]byte) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path), 0o755)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	zw := zip.NewWriter(f)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish %s: %v", path, err)
	}
	MustClose(t, f)
}

// BPMNProcess renders a minimal executable BPMN2 process definition.
func BPMNProcess(id, name, version string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL"
             xmlns:drools="http://www.jboss.org/drools"
             targetNamespace="http://www.jboss.org/drools">
  <process id=%q name=%q drools:version=%q drools:packageName="org.acme" isExecutable="true">
    <startEvent id="start"/>
    <endEvent id="end"/>
    <sequenceFlow id="flow" sourceRef="start" targetRef="end"/>
  </process>
</definitions>
`, id, name, version)
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}
