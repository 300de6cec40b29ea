// Copyright 2025 Tom Barlow
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

// Package secrets resolves secret references such as API keys.
//
// A reference has the form <scheme>:<name>:
//
//	keyring:galaxy-main   system keychain entry "galaxy-main" (service "galaxyrun")
//	env:GALAXY_API_KEY    environment variable
//	file:~/.galaxy/key    first line of a file
//
// Any other value is returned unchanged.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSecretNotFound is returned when a referenced secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a backend cannot be used in the
	// current environment.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Backend looks up secrets by name.
type Backend interface {
	// Scheme is the reference prefix handled by the backend, without colon.
	Scheme() string

	// Get returns ErrSecretNotFound when name does not exist.
	Get(ctx context.Context, name string) (string, error)
}

// Resolver dispatches references to backends by scheme.
type Resolver struct {
	backends map[string]Backend
}

// NewResolver creates a resolver over the given backends. A later backend
// replaces an earlier one with the same scheme.
func NewResolver(backends ...Backend) *Resolver {
	r := &Resolver{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Scheme()] = b
	}
	return r
}

// DefaultResolver resolves keyring:, env: and file: references.
func DefaultResolver() *Resolver {
	return NewResolver(NewKeyringBackend(), EnvBackend{}, FileBackend{})
}

// Schemes lists the registered schemes.
func (r *Resolver) Schemes() []string {
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsReference reports whether value names a registered scheme.
func (r *Resolver) IsReference(value string) bool {
	_, _, ok := r.split(value)
	return ok
}

func (r *Resolver) split(value string) (Backend, string, bool) {
	scheme, name, ok := strings.Cut(value, ":")
	if !ok || name == "" {
		return nil, "", false
	}
	b, ok := r.backends[scheme]
	return b, name, ok
}

// Resolve returns the secret value referenced by value, or value itself
// when it is not a reference.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	b, name, ok := r.split(value)
	if !ok {
		return value, nil
	}
	secret, err := b.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolving %s reference %q: %w", b.Scheme(), name, err)
	}
	if secret == "" {
		return "", fmt.Errorf("resolving %s reference %q: %w", b.Scheme(), name, ErrSecretNotFound)
	}
	return secret, nil
}
