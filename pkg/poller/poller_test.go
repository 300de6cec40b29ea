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

package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	states []*State
	errs   []error
	calls  int
}

func (f *fakeSource) ContainerState(ctx context.Context, containerID string) (*State, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.states) {
		return f.states[len(f.states)-1], nil
	}
	return f.states[i], nil
}

type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func idle(state string) *State {
	return &State{State: state, Counts: map[string]int{StateRunning: 0, StateQueued: 0, StateOK: 2}}
}

func busy() *State {
	return &State{State: StateRunning, Counts: map[string]int{StateRunning: 1, StateQueued: 0}}
}

func TestWaitUntilReady_ReadyAfterOneSleep(t *testing.T) {
	src := &fakeSource{states: []*State{idle(StateOK)}}
	rec := &sleepRecorder{}
	p := New(src, WithSleep(rec.sleep))

	res, err := p.WaitUntilReady(context.Background(), "hist1", 5, 3*time.Second)
	require.NoError(t, err)

	assert.True(t, res.Ready)
	assert.Equal(t, []time.Duration{3 * time.Second}, rec.sleeps)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, StateOK, res.FinalState)
	assert.False(t, res.Degraded())
	assert.Nil(t, res.Timeout)
	assert.Equal(t, 2, src.calls, "one poll plus the final state query")
}

func TestWaitUntilReady_NotReadyAfterMaxAttempts(t *testing.T) {
	src := &fakeSource{states: []*State{busy()}}
	rec := &sleepRecorder{}
	p := New(src, WithSleep(rec.sleep), WithSettleDelay(time.Second))

	res, err := p.WaitUntilReady(context.Background(), "hist1", 4, 2*time.Second)
	require.NoError(t, err)

	assert.False(t, res.Ready)
	assert.Len(t, rec.sleeps, 4, "no settle delay without readiness")
	assert.Equal(t, 4, res.Attempts)
	require.NotNil(t, res.Timeout)
	assert.Equal(t, 8*time.Second, res.Timeout.Duration)
	assert.Equal(t, StateRunning, res.FinalState)
	assert.True(t, res.Degraded())
}

func TestWaitUntilReady_SettleDelay(t *testing.T) {
	src := &fakeSource{states: []*State{busy(), idle(StateOK)}}
	rec := &sleepRecorder{}
	p := New(src, WithSleep(rec.sleep), WithSettleDelay(500*time.Millisecond))

	res, err := p.WaitUntilReady(context.Background(), "hist1", 10, time.Second)
	require.NoError(t, err)

	assert.True(t, res.Ready)
	assert.Equal(t, []time.Duration{time.Second, time.Second, 500 * time.Millisecond}, rec.sleeps)
}

func TestWaitUntilReady_ReadyButFailedItems(t *testing.T) {
	src := &fakeSource{states: []*State{{State: "error", Counts: map[string]int{"error": 1}}}}
	p := New(src, WithSleep((&sleepRecorder{}).sleep))

	res, err := p.WaitUntilReady(context.Background(), "hist1", 3, time.Second)
	require.NoError(t, err)

	assert.True(t, res.Ready)
	assert.True(t, res.Degraded())
	assert.Equal(t, "error", res.FinalState)
}

func TestWaitUntilReady_QueryErrorsAreRetried(t *testing.T) {
	src := &fakeSource{
		states: []*State{nil, idle(StateOK)},
		errs:   []error{errors.New("502 bad gateway")},
	}
	var attempts []int
	p := New(src, WithSleep((&sleepRecorder{}).sleep))
	p.OnAttempt = func(_ string, attempt int) { attempts = append(attempts, attempt) }

	res, err := p.WaitUntilReady(context.Background(), "hist1", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestWaitUntilReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&fakeSource{states: []*State{busy()}}, WithSleep((&sleepRecorder{}).sleep))
	_, err := p.WaitUntilReady(ctx, "hist1", 3, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
