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

// Package poller waits for a remote Galaxy history to go quiet.
//
// Readiness is heuristic: a history is ready once no item is running or
// queued. Items that failed count as neither, so a ready history may still
// contain errors; the final state reported in Result tells them apart.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/galaxyrun/pkg/errors"
)

// Item states counted by the remote server.
const (
	StateRunning = "running"
	StateQueued  = "queued"
	StateOK      = "ok"
)

// State is one observation of a container.
type State struct {
	// State is the aggregate container state, "ok" on success.
	State string

	// Counts maps item state to the number of items in it.
	Counts map[string]int
}

// StateSource reports container state.
type StateSource interface {
	ContainerState(ctx context.Context, containerID string) (*State, error)
}

// StateSourceFunc adapts a function to StateSource.
type StateSourceFunc func(ctx context.Context, containerID string) (*State, error)

// ContainerState implements StateSource.
func (f StateSourceFunc) ContainerState(ctx context.Context, containerID string) (*State, error) {
	return f(ctx, containerID)
}

// Result is the outcome of WaitUntilReady.
type Result struct {
	Ready       bool
	FinalState  string
	StateCounts map[string]int
	Attempts    int

	// Timeout is set when the attempt budget ran out before readiness.
	Timeout *errors.TimeoutError
}

// Degraded reports whether the final container state was not "ok".
func (r *Result) Degraded() bool {
	return r.FinalState != StateOK
}

// Poller polls a StateSource at a fixed interval.
type Poller struct {
	source      StateSource
	logger      *slog.Logger
	settleDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	// OnAttempt, when set, is called after every state query.
	OnAttempt func(containerID string, attempt int)
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// WithSettleDelay sets the pause taken after readiness is observed.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Poller) { p.settleDelay = d }
}

// WithSleep replaces the sleep function, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// New creates a Poller reading from source.
func New(source StateSource, opts ...Option) *Poller {
	p := &Poller{
		source: source,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WaitUntilReady sleeps interval then queries the container, up to
// maxAttempts times, until nothing is running or queued. One final state
// query follows the loop whether or not readiness was reached.
//
// Running out of attempts is not an error: the result has Ready false and
// Timeout set. Cancellation of ctx is returned as an error.
func (p *Poller) WaitUntilReady(ctx context.Context, containerID string, maxAttempts int, interval time.Duration) (*Result, error) {
	logger := p.logger.With("container_id", containerID)
	result := &Result{}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := p.sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("waiting for container %s: %w", containerID, err)
		}
		result.Attempts = attempt

		state, err := p.source.ContainerState(ctx, containerID)
		if p.OnAttempt != nil {
			p.OnAttempt(containerID, attempt)
		}
		if err != nil {
			if errors.IsInterruption(err) {
				return nil, err
			}
			logger.Warn("container state query failed", "attempt", attempt, "error", err)
			continue
		}

		result.StateCounts = state.Counts
		running, queued := state.Counts[StateRunning], state.Counts[StateQueued]
		logger.Debug("container state",
			"attempt", attempt,
			"state", state.State,
			"running", running,
			"queued", queued)

		if running == 0 && queued == 0 {
			result.Ready = true
			break
		}
	}

	if !result.Ready {
		result.Timeout = &errors.TimeoutError{
			Operation: "waiting for container " + containerID,
			Duration:  time.Duration(maxAttempts) * interval,
		}
		logger.Warn("container not ready within attempt budget",
			"attempts", maxAttempts,
			"interval", interval)
	}

	final, err := p.source.ContainerState(ctx, containerID)
	switch {
	case err != nil && errors.IsInterruption(err):
		return nil, err
	case err != nil:
		logger.Warn("final container state query failed", "error", err)
	default:
		result.FinalState = final.State
		if final.Counts != nil {
			result.StateCounts = final.Counts
		}
	}
	if result.Degraded() {
		logger.Warn("container finished in a non-ok state",
			"state", result.FinalState,
			"counts", result.StateCounts)
	}

	if result.Ready && p.settleDelay > 0 {
		if err := p.sleep(ctx, p.settleDelay); err != nil {
			return nil, fmt.Errorf("waiting for container %s: %w", containerID, err)
		}
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
