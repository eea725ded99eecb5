/***** BEGIN LICENSE BLOCK *****
# This Source Code Form is subject to the terms of the Mozilla Public
# License, v. 2.0. If a copy of the MPL was not distributed with this file,
# You can obtain one at http://mozilla.org/MPL/2.0/.
#
# The Initial Developer of the Original Code is the Mozilla Foundation.
# Portions created by the Initial Developer are Copyright (C) 2012-2015
# the Initial Developer. All Rights Reserved.
#
# ***** END LICENSE BLOCK *****/

package pipeline

import (
	"fmt"
	"strings"
	"sync"
)

// PipelineVariable is a snapshot of one stored name/value/read-only triple,
// returned by VariableStore.Entries for inspection and logging.
type PipelineVariable struct {
	Name     string
	Value    interface{}
	ReadOnly bool
}

type variableEntry struct {
	value    interface{}
	readOnly bool
}

// VariableStore holds a process-global or per-pipeline set of named values.
// Both levels share this same shape per the data model: set/safeSet/get,
// all keys passed through NormalizeVariableName.
type VariableStore struct {
	mu   sync.RWMutex
	vars map[string]*variableEntry
}

// NewVariableStore returns an empty store.
func NewVariableStore() *VariableStore {
	return &VariableStore{vars: make(map[string]*variableEntry)}
}

// NormalizeVariableName strips a leading '$' and lowercases the rest.
func NormalizeVariableName(key string) string {
	key = strings.TrimPrefix(key, "$")
	return strings.ToLower(key)
}

// Set stores a value unconditionally, bypassing read-only protection. Used
// only by the engine itself, e.g. to seed the global input slot.
func (s *VariableStore) Set(key string, value interface{}, readOnly bool) {
	key = NormalizeVariableName(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = &variableEntry{value: value, readOnly: readOnly}
}

// SafeSet stores a value unless an existing entry under key is read-only,
// in which case it fails with ReadOnlyViolation.
func (s *VariableStore) SafeSet(key string, value interface{}) error {
	norm := NormalizeVariableName(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.vars[norm]; ok && existing.readOnly {
		return newReadOnlyViolation(norm)
	}
	s.vars[norm] = &variableEntry{value: value}
	return nil
}

// IsSet reports whether key has an entry in this store.
func (s *VariableStore) IsSet(key string) bool {
	norm := NormalizeVariableName(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[norm]
	return ok
}

func (s *VariableStore) rawGet(key string) (*variableEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.vars[key]
	return e, ok
}

// Get returns the string rendering of the variable under key. If fallback
// is non-nil and the key is absent locally, fallback is consulted before
// failing with UnknownVariable.
func (s *VariableStore) Get(key string, fallback *VariableStore) (string, error) {
	norm := NormalizeVariableName(key)
	if e, ok := s.rawGet(norm); ok {
		return stringify(e.value), nil
	}
	if fallback != nil {
		if e, ok := fallback.rawGet(norm); ok {
			return stringify(e.value), nil
		}
	}
	return "", newUnknownVariable(norm)
}

// Clear removes every entry from the store.
func (s *VariableStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = make(map[string]*variableEntry)
}

// Unset removes a single entry from the store.
func (s *VariableStore) Unset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, NormalizeVariableName(key))
}

// Entries returns a snapshot of every stored variable.
func (s *VariableStore) Entries() []PipelineVariable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PipelineVariable, 0, len(s.vars))
	for k, e := range s.vars {
		out = append(out, PipelineVariable{Name: k, Value: e.value, ReadOnly: e.readOnly})
	}
	return out
}

// stringify renders a variable's opaque value as a string. A nil value
// renders as empty string; a fmt.Stringer uses its own rendering.
func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
