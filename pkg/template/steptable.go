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
	"fmt"
	"sort"
	"strconv"

	"github.com/tombee/galaxyrun/pkg/errors"
)

// StepTable maps 1-based step numbers to the step ids a remote server
// assigned to a template. Ids are ordered numerically; ids that are not
// numbers sort lexically after all numeric ones.
type StepTable struct {
	ids []string
}

// NewStepTable builds a table from remote step ids in any order.
func NewStepTable(ids []string) *StepTable {
	sorted := append([]string(nil), ids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, aErr := strconv.Atoi(sorted[i])
		b, bErr := strconv.Atoi(sorted[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return sorted[i] < sorted[j]
		}
	})
	return &StepTable{ids: sorted}
}

// Lookup returns the remote id for step number n. A number with no entry is
// a ValidationError rather than a silent mis-binding.
func (t *StepTable) Lookup(n int) (string, error) {
	if n < 1 || n > len(t.ids) {
		return "", &errors.ValidationError{
			Field:      "step",
			Message:    fmt.Sprintf("step %d has no entry in the template's step table (%d steps)", n, len(t.ids)),
			Suggestion: "step numbers start at 1 and follow the template's step order",
		}
	}
	return t.ids[n-1], nil
}

// Len returns the number of steps in the table.
func (t *StepTable) Len() int {
	return len(t.ids)
}

// IDs returns the ordered remote ids.
func (t *StepTable) IDs() []string {
	return append([]string(nil), t.ids...)
}
