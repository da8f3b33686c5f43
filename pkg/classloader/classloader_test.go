// SPDX-License-Identifier: MPL-2.0

package classloader_test

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/classloader"
)

const remotable = "org.kie.api.remote.Remotable"

type memResources struct {
	name  string
	files map[string][]byte
}

func (m memResources) Name() string { return m.name }

func (m memResources) FileNames() []string {
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (m memResources) Bytes(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestParseClassFile(t *testing.T) {
	t.Parallel()

	cf, err := classloader.ParseClassFile(testutil.ClassBytes("com.acme.Order", remotable, "javax.xml.bind.annotation.XmlRootElement"))
	if err != nil {
		t.Fatalf("ParseClassFile() error = %v", err)
	}
	if cf.Name != "com.acme.Order" {
		t.Errorf("Name = %q, want com.acme.Order", cf.Name)
	}
	if cf.SuperName != "java.lang.Object" {
		t.Errorf("SuperName = %q, want java.lang.Object", cf.SuperName)
	}
	want := []string{remotable, "javax.xml.bind.annotation.XmlRootElement"}
	if !slices.Equal(cf.Annotations, want) {
		t.Errorf("Annotations = %v, want %v", cf.Annotations, want)
	}
}

func TestParseClassFile_Invalid(t *testing.T) {
	t.Parallel()

	valid := testutil.ClassBytes("com.acme.Order")
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bad magic", data: append([]byte{0xDE, 0xAD, 0xBE, 0xEF}, valid[4:]...)},
		{name: "truncated", data: valid[:len(valid)-3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := classloader.ParseClassFile(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClassNamePaths(t *testing.T) {
	t.Parallel()

	if got := classloader.ClassNameFromPath("com/acme/Order.class"); got != "com.acme.Order" {
		t.Errorf("ClassNameFromPath() = %q", got)
	}
	if got := classloader.PathFromClassName("com.acme.Order"); got != "com/acme/Order.class" {
		t.Errorf("PathFromClassName() = %q", got)
	}
	if classloader.IsClassFile(".class") || !classloader.IsClassFile("A.class") || classloader.IsClassFile("a.bpmn") {
		t.Error("IsClassFile() misclassified")
	}
}

func TestLoader_SearchOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	testutil.MustWriteZip(t, jar, map[string][]byte{
		"com/acme/Shared.class": testutil.ClassBytes("com.acme.Shared", remotable),
	})

	system := classloader.NewRegistry()
	system.Register("com.acme.Host", func(args []any, _ map[string]any) (any, error) {
		return fmt.Sprintf("%v-%v", args[0], args[1]), nil
	})

	module := memResources{name: "org.acme:orders:1.0", files: map[string][]byte{
		"com/acme/Shared.class": testutil.ClassBytes("com.acme.Shared"),
		"com/acme/Order.class":  testutil.ClassBytes("com.acme.Order"),
		"com/acme/Host.class":   testutil.ClassBytes("com.acme.Host"),
	}}

	loader := classloader.NewLoader(system, classloader.NewJarLoader(jar), module)

	tests := []struct {
		class      string
		wantSource string
	}{
		{class: "com.acme.Host", wantSource: classloader.SystemSource},
		{class: "com.acme.Shared", wantSource: jar},
		{class: "com.acme.Order", wantSource: "org.acme:orders:1.0"},
	}
	for _, tt := range tests {
		c, err := loader.LoadClass(tt.class)
		if err != nil {
			t.Fatalf("LoadClass(%q) error = %v", tt.class, err)
		}
		if c.Source != tt.wantSource {
			t.Errorf("LoadClass(%q).Source = %q, want %q", tt.class, c.Source, tt.wantSource)
		}
	}

	shared, _ := loader.LoadClass("com.acme.Shared")
	if !shared.HasAnnotation(remotable) {
		t.Error("jar class should keep its annotations")
	}
	again, _ := loader.LoadClass("com.acme.Shared")
	if again != shared {
		t.Error("LoadClass() should cache loaded classes")
	}

	host, _ := loader.LoadClass("com.acme.Host")
	v, err := host.New([]any{"a", "b"}, nil)
	if err != nil || v != "a-b" {
		t.Errorf("New() = %v, %v", v, err)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	module := memResources{name: "org.acme:orders:1.0", files: map[string][]byte{
		"com/acme/Broken.class":  []byte("not a class"),
		"com/acme/Renamed.class": testutil.ClassBytes("com.acme.Other"),
		"com/acme/Plain.class":   testutil.ClassBytes("com.acme.Plain"),
	}}
	loader := classloader.NewLoader(nil, nil, module)

	if _, err := loader.LoadClass("com.acme.Missing"); !errors.Is(err, classloader.ErrClassNotFound) {
		t.Errorf("missing class error = %v, want ErrClassNotFound", err)
	}

	for _, name := range []string{"com.acme.Broken", "com.acme.Renamed"} {
		_, err := loader.LoadClass(name)
		var linkErr *classloader.LinkageError
		if !errors.As(err, &linkErr) || !errors.Is(err, classloader.ErrLinkage) {
			t.Errorf("LoadClass(%q) error = %v, want LinkageError", name, err)
		}
	}

	plain, err := loader.LoadClass("com.acme.Plain")
	if err != nil {
		t.Fatalf("LoadClass() error = %v", err)
	}
	if plain.Instantiable() {
		t.Error("module classes have no constructor")
	}
	if _, err := plain.New(nil, nil); !errors.Is(err, classloader.ErrNoConstructor) {
		t.Errorf("New() error = %v, want ErrNoConstructor", err)
	}
}

func TestJarLoader_MissingJar(t *testing.T) {
	t.Parallel()

	jar := filepath.Join(t.TempDir(), "absent.jar")
	loader := classloader.NewLoader(nil, classloader.NewJarLoader(jar))
	_, err := loader.LoadClass("com.acme.Any")
	if !errors.Is(err, classloader.ErrLinkage) {
		t.Errorf("error = %v, want ErrLinkage for unreadable jar", err)
	}
	if got := loader.Parent().URLs(); !slices.Equal(got, []string{jar}) {
		t.Errorf("URLs() = %v", got)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	r := classloader.NewRegistry()
	r.Register("b.B", nil)
	r.Register("a.A", nil, remotable)
	if got := r.Names(); !slices.Equal(got, []string{"a.A", "b.B"}) {
		t.Errorf("Names() = %v", got)
	}
	c, ok := r.Lookup("a.A")
	if !ok || !c.HasAnnotation(remotable) || c.Source != classloader.SystemSource {
		t.Errorf("Lookup() = %+v, %v", c, ok)
	}
}
