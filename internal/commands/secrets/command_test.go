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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tombee/galaxyrun/internal/secrets"
	"github.com/tombee/galaxyrun/pkg/errors"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSetAndDelete(t *testing.T) {
	keyring.MockInit()

	out, err := execute(t, "abc123\n", "set", "main")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored keyring:main")

	value, err := keyring.Get(secrets.KeyringService, "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", value)

	out, err = execute(t, "", "delete", "main")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted keyring:main")

	_, err = keyring.Get(secrets.KeyringService, "main")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestSet_EmptyValue(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "  \n", "set", "main")
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "value", ve.Field)
}

func TestSet_InvalidName(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "abc", "set", `servers\main`)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)
	assert.NotEmpty(t, ve.Suggestion)
}

func TestDelete_Missing(t *testing.T) {
	keyring.MockInit()

	_, err := execute(t, "", "delete", "nope")
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}
