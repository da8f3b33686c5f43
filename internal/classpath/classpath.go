// SPDX-License-Identifier: MPL-2.0

// Package classpath indexes annotated classes inside external jar archives.
package classpath

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/kdeploy/kdeploy/pkg/classloader"
)

const (
	// AnnotationRemotable marks classes exposed to remote clients.
	AnnotationRemotable = "org.kie.api.remote.Remotable"
	// AnnotationXMLRootElement marks classes bound to XML documents.
	AnnotationXMLRootElement = "javax.xml.bind.annotation.XmlRootElement"
)

type (
	// Scanner finds classes carrying any of a set of annotations in the jar
	// archives of a loader's parent.
	Scanner struct {
		annotations []string
		logger      *log.Logger
	}

	// Option configures a Scanner.
	Option func(*Scanner)
)

// WithLogger sets the scanner logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithAnnotations replaces the annotations the scanner looks for.
func WithAnnotations(annotations ...string) Option {
	return func(s *Scanner) { s.annotations = slices.Clone(annotations) }
}

// NewScanner creates a scanner for the remotable and XML root element annotations.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		annotations: []string{AnnotationRemotable, AnnotationXMLRootElement},
		logger:      log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns the sorted names of annotated classes found in the jars of
// loader.Parent(). Unreadable jars and class entries are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, loader *classloader.Loader) []string {
	if loader == nil {
		return nil
	}
	found := map[string]bool{}
	for _, url := range loader.Parent().URLs() {
		if ctx.Err() != nil {
			s.logger.Warn("classpath scan interrupted", "err", ctx.Err())
			break
		}
		if err := s.scanJar(url, found); err != nil {
			s.logger.Warn("cannot scan jar", "jar", url, "err", err)
		}
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Scanner) scanJar(url string, found map[string]bool) error {
	zr, err := zip.OpenReader(url)
	if err != nil {
		return fmt.Errorf("open jar: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if !classloader.IsClassFile(f.Name) {
			continue
		}
		cf, err := readClass(f)
		if err != nil {
			s.logger.Warn("cannot read class entry", "jar", url, "entry", f.Name, "err", err)
			continue
		}
		if s.matches(cf.Annotations) {
			found[cf.Name] = true
		}
	}
	return nil
}

func (s *Scanner) matches(annotations []string) bool {
	for _, a := range annotations {
		if slices.Contains(s.annotations, a) {
			return true
		}
	}
	return false
}

func readClass(f *zip.File) (*classloader.ClassFile, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return classloader.ParseClassFile(data)
}
