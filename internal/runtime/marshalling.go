// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownPlaceholder is returned when unmarshalling a placeholder the
	// strategy never issued.
	ErrUnknownPlaceholder = errors.New("unknown placeholder")
	// ErrNoStrategy is returned when no marshalling strategy accepts an object.
	ErrNoStrategy = errors.New("no marshalling strategy accepts object")
)

type (
	// MarshallingStrategy converts process variables to and from bytes.
	MarshallingStrategy interface {
		Accept(obj any) bool
		Marshal(obj any) ([]byte, error)
		Unmarshal(data []byte) (any, error)
	}

	// PlaceholderResolverStrategy accepts every object and keeps it in memory,
	// marshalling it to an opaque placeholder id. It is always the last
	// strategy of an environment.
	PlaceholderResolverStrategy struct {
		mu      sync.RWMutex
		objects map[string]any
	}

	// JSONMarshallingStrategy marshals JSON-compatible values.
	JSONMarshallingStrategy struct{}
)

// NewPlaceholderResolverStrategy creates an empty placeholder strategy.
func NewPlaceholderResolverStrategy() *PlaceholderResolverStrategy {
	return &PlaceholderResolverStrategy{objects: map[string]any{}}
}

// Accept implements MarshallingStrategy.
func (*PlaceholderResolverStrategy) Accept(any) bool { return true }

// Marshal implements MarshallingStrategy.
func (s *PlaceholderResolverStrategy) Marshal(obj any) ([]byte, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.objects[id] = obj
	s.mu.Unlock()
	return []byte(id), nil
}

// Unmarshal implements MarshallingStrategy.
func (s *PlaceholderResolverStrategy) Unmarshal(data []byte) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[string(data)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlaceholder, data)
	}
	return obj, nil
}

// Accept implements MarshallingStrategy.
func (JSONMarshallingStrategy) Accept(obj any) bool {
	switch obj.(type) {
	case map[string]any, []any, string, bool, float64, int, int64, json.RawMessage:
		return true
	default:
		return false
	}
}

// Marshal implements MarshallingStrategy.
func (JSONMarshallingStrategy) Marshal(obj any) ([]byte, error) {
	return json.Marshal(obj)
}

// Unmarshal implements MarshallingStrategy.
func (JSONMarshallingStrategy) Unmarshal(data []byte) (any, error) {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal encodes obj with the first strategy that accepts it and returns
// the strategy's index.
func Marshal(strategies []MarshallingStrategy, obj any) ([]byte, int, error) {
	for i, s := range strategies {
		if !s.Accept(obj) {
			continue
		}
		data, err := s.Marshal(obj)
		if err != nil {
			return nil, i, err
		}
		return data, i, nil
	}
	return nil, -1, fmt.Errorf("%w: %T", ErrNoStrategy, obj)
}
