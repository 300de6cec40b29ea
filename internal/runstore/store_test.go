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

package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "runs.db"), WAL: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, template string, started time.Time, success bool) orchestrator.RunRecord {
	return orchestrator.RunRecord{
		ID:                   id,
		Template:             template,
		ContainerID:          "h1",
		ExecutionContainerID: "h2",
		Phase:                "done",
		Success:              success,
		Outputs:              map[string]string{"out": "/tmp/out.txt", "lazy": ""},
		StartedAt:            started,
		FinishedAt:           started.Add(time.Minute),
	}
}

func TestRecordAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)

	require.NoError(t, s.RecordRun(ctx, record("r1", "Concat", started, true)))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Concat", got.Template)
	assert.Equal(t, "h1", got.ContainerID)
	assert.Equal(t, "h2", got.ExecutionContainerID)
	assert.True(t, got.Success)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, map[string]string{"out": "/tmp/out.txt", "lazy": ""}, got.Outputs)
	assert.Empty(t, got.Error)
}

func TestRecordReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := record("r1", "Concat", time.Now(), false)
	require.NoError(t, s.RecordRun(ctx, rec))

	rec.Success = true
	rec.Error = "boom"
	rec.Outputs = map[string]string{"only": "/x"}
	require.NoError(t, s.RecordRun(ctx, rec))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, map[string]string{"only": "/x"}, got.Outputs)
}

func TestGet_NotFound(t *testing.T) {
	_, err := openStore(t).Get(context.Background(), "nope")
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRun(ctx, record("a", "Concat", base, true)))
	require.NoError(t, s.RecordRun(ctx, record("b", "Filter", base.Add(time.Hour), false)))
	require.NoError(t, s.RecordRun(ctx, record("c", "Concat", base.Add(2*time.Hour), true)))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Len(t, all[0].Outputs, 2)

	limited, err := s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)

	concat, err := s.List(ctx, Filter{Template: "Concat"})
	require.NoError(t, err)
	assert.Len(t, concat, 2)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.RecordRun(context.Background(), record("r1", "Concat", time.Now(), true)))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
