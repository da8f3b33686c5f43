// SPDX-License-Identifier: MPL-2.0

// Package forms keeps the form templates of deployed modules.
package forms

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrEmptyFormName is returned when registering a form without a name.
var ErrEmptyFormName = errors.New("form name must not be empty")

// Registrar is a concurrent in-memory form store keyed by deployment id and
// form name.
type Registrar struct {
	mu    sync.RWMutex
	forms map[string]map[string]string
}

// NewRegistrar creates an empty registrar.
func NewRegistrar() *Registrar {
	return &Registrar{forms: map[string]map[string]string{}}
}

// Register stores a form, replacing any form of the same name.
func (r *Registrar) Register(deploymentID, name, content string) error {
	if name == "" {
		return fmt.Errorf("register form for %s: %w", deploymentID, ErrEmptyFormName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.forms[deploymentID]
	if !ok {
		byName = map[string]string{}
		r.forms[deploymentID] = byName
	}
	byName[name] = content
	return nil
}

// UnregisterAll drops every form of a deployment.
func (r *Registrar) UnregisterAll(deploymentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.forms, deploymentID)
}

// Forms returns the form names of a deployment, sorted.
func (r *Registrar) Forms(deploymentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.forms[deploymentID]))
}

// Get returns one form.
func (r *Registrar) Get(deploymentID, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	content, ok := r.forms[deploymentID][name]
	return content, ok
}
