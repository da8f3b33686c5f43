// SPDX-License-Identifier: MPL-2.0

package classpath

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/internal/testutil"
	"github.com/kdeploy/kdeploy/pkg/classloader"
)

func TestScanner_Scan(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	api := testutil.InstallJar(t, root, "org.acme", "api", "1.0", map[string][]string{
		"org.acme.api.Order":    {AnnotationXMLRootElement},
		"org.acme.api.Service":  {AnnotationRemotable, "java.lang.Deprecated"},
		"org.acme.api.Internal": nil,
	})
	model := testutil.InstallJar(t, root, "org.acme", "model", "1.0", map[string][]string{
		"org.acme.model.Customer": {AnnotationXMLRootElement},
	})
	broken := filepath.Join(root, "broken.jar")
	testutil.MustWriteZip(t, broken, map[string][]byte{"org/acme/Bad.class": []byte("not a class")})
	missing := filepath.Join(root, "missing.jar")

	var logs bytes.Buffer
	s := NewScanner(WithLogger(log.NewWithOptions(&logs, log.Options{})))
	loader := classloader.NewLoader(nil, classloader.NewJarLoader(api, broken, missing, model))

	got := s.Scan(context.Background(), loader)
	want := []string{"org.acme.api.Order", "org.acme.api.Service", "org.acme.model.Customer"}
	if !slices.Equal(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
	if !strings.Contains(logs.String(), "missing.jar") || !strings.Contains(logs.String(), "org/acme/Bad.class") {
		t.Errorf("expected warnings for unreadable jar and class entry, got:\n%s", logs.String())
	}
}

func TestScanner_CustomAnnotations(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	jar := testutil.InstallJar(t, root, "org.acme", "api", "1.0", map[string][]string{
		"org.acme.Marked": {"org.acme.Marker"},
		"org.acme.Order":  {AnnotationXMLRootElement},
	})

	s := NewScanner(WithAnnotations("org.acme.Marker"))
	got := s.Scan(context.Background(), classloader.NewLoader(nil, classloader.NewJarLoader(jar)))
	if !slices.Equal(got, []string{"org.acme.Marked"}) {
		t.Errorf("Scan() = %v", got)
	}
}

func TestScanner_NoJars(t *testing.T) {
	t.Parallel()

	s := NewScanner()
	if got := s.Scan(context.Background(), classloader.NewLoader(nil, nil)); len(got) != 0 {
		t.Errorf("Scan() = %v, want none", got)
	}
	if got := s.Scan(context.Background(), nil); got != nil {
		t.Errorf("Scan(nil) = %v, want nil", got)
	}
}
