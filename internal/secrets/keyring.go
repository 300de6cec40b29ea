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

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name of galaxyrun keychain entries.
const KeyringService = "galaxyrun"

// KeyringBackend reads secrets from the system keychain:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates a backend for KeyringService.
func NewKeyringBackend() *KeyringBackend {
	return &KeyringBackend{service: KeyringService}
}

// Scheme implements Backend.
func (k *KeyringBackend) Scheme() string { return "keyring" }

// Get implements Backend.
func (k *KeyringBackend) Get(_ context.Context, name string) (string, error) {
	value, err := keyring.Get(k.service, name)
	if err != nil {
		return "", keyringError(name, err)
	}
	return value, nil
}

// Set stores a secret in the keychain.
func (k *KeyringBackend) Set(_ context.Context, name, value string) error {
	if err := keyring.Set(k.service, name, value); err != nil {
		return keyringError(name, err)
	}
	return nil
}

// Delete removes a secret from the keychain.
func (k *KeyringBackend) Delete(_ context.Context, name string) error {
	if err := keyring.Delete(k.service, name); err != nil {
		return keyringError(name, err)
	}
	return nil
}

func keyringError(name string, err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	if isKeyringUnavailable(err) {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
	}
	return fmt.Errorf("keychain error: %w", err)
}

// isKeyringUnavailable matches the messages platforms use for a locked or
// missing keychain.
func isKeyringUnavailable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
