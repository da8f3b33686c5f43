// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

var (
	// ErrInvalidDocument is the sentinel error wrapped by DocumentError.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrFileTooLarge is the sentinel error wrapped by FileTooLargeError.
	ErrFileTooLarge = errors.New("file too large")
)

type (
	// FieldIssue is one problem found in a document.
	FieldIssue struct {
		// Path is the JSON path of the field (e.g. "kbases[0].name"), empty
		// for document-level problems.
		Path    string
		Message string
	}

	// DocumentError lists the problems of a document that failed to
	// compile, validate or decode.
	DocumentError struct {
		File   string
		Issues []FieldIssue
	}

	// FileTooLargeError is returned for documents above the size limit.
	FileTooLargeError struct {
		File string
		Size int64
		Max  int64
	}
)

// Error formats the issues as "<file>: <path>: <message>", one per line
// when there are several.
func (e *DocumentError) Error() string {
	lines := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		if is.Path == "" {
			lines[i] = is.Message
		} else {
			lines[i] = is.Path + ": " + is.Message
		}
	}
	if len(lines) == 1 {
		return fmt.Sprintf("%s: %s", e.File, lines[0])
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.File, strings.Join(lines, "\n  "))
}

// Unwrap returns ErrInvalidDocument for errors.Is() compatibility.
func (e *DocumentError) Unwrap() error { return ErrInvalidDocument }

// Error implements the error interface.
func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("%s: file size %d bytes exceeds maximum %d bytes", e.File, e.Size, e.Max)
}

// Unwrap returns ErrFileTooLarge for errors.Is() compatibility.
func (e *FileTooLargeError) Unwrap() error { return ErrFileTooLarge }

// FormatError converts a CUE error into a *DocumentError for file.
// Errors that carry no CUE detail are wrapped with the file name.
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}

	var cueErr cueerrors.Error
	if !errors.As(err, &cueErr) {
		return fmt.Errorf("%s: %w", file, err)
	}
	list := cueerrors.Errors(err)

	de := &DocumentError{File: file, Issues: make([]FieldIssue, 0, len(list))}
	for _, e := range list {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()
		// CUE repeats the path at the start of some messages.
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		de.Issues = append(de.Issues, FieldIssue{Path: path, Message: msg})
	}
	return de
}

// formatPath renders ["kbases", "0", "name"] as "kbases[0].name".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			b.WriteString("[" + part + "]")
		case i > 0:
			b.WriteString("." + part)
		default:
			b.WriteString(part)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize returns a *FileTooLargeError when data exceeds maxSize.
func CheckFileSize(data []byte, maxSize int64, file string) error {
	if size := int64(len(data)); size > maxSize {
		return &FileTooLargeError{File: file, Size: size, Max: maxSize}
	}
	return nil
}
