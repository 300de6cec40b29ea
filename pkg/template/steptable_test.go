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

package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/pkg/errors"
)

func TestStepTable_NumericOrder(t *testing.T) {
	table := NewStepTable([]string{"10", "2", "1"})

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"1", "2", "10"}, table.IDs())

	id, err := table.Lookup(3)
	require.NoError(t, err)
	assert.Equal(t, "10", id)
}

func TestStepTable_NonNumericAfterNumeric(t *testing.T) {
	table := NewStepTable([]string{"f2c3", "5", "a1b2"})
	assert.Equal(t, []string{"5", "a1b2", "f2c3"}, table.IDs())
}

func TestStepTable_MissingEntryFailsLoudly(t *testing.T) {
	table := NewStepTable([]string{"1", "2"})

	for _, n := range []int{0, 3, -1} {
		_, err := table.Lookup(n)
		require.Error(t, err)
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr))
	}
}
