// Copyright 2025 The Duratask Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"fmt"
	"reflect"
	"sync"
)

// registry maps callable names to registered functions. Registration is
// explicit: a worker only runs what was handed to it by name, nothing is
// discovered implicitly.
type registry interface {
	get(name string) (any, error)
	set(name string, fn any) error
	names() []string
	size() int
}

func newInMemoryRegistry() *hashMapRegistry {
	return &hashMapRegistry{
		entries: make(map[string]any),
	}
}

type hashMapRegistry struct {
	mu      sync.RWMutex
	entries map[string]any
}

func (m *hashMapRegistry) get(name string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%q is not registered", name)
	}
	return entry, nil
}

func (m *hashMapRegistry) set(name string, fn any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; ok {
		return fmt.Errorf("%q: %w", name, ErrDuplicateRegistration)
	}

	if reflect.TypeOf(fn).Kind() != reflect.Func {
		return fmt.Errorf("entry %q is not a function", name)
	}

	m.entries[name] = fn
	return nil
}

func (m *hashMapRegistry) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.entries))
	for name := range m.entries {
		out = append(out, name)
	}
	return out
}

func (m *hashMapRegistry) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
