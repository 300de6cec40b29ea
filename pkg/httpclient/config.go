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

package httpclient

import (
	"fmt"
	"log/slog"
	"time"
)

// APIKeyHeader carries the Galaxy API key.
const APIKeyHeader = "x-api-key"

// Config configures the client.
type Config struct {
	// Timeout bounds a whole request, including retries. Uploads of large
	// files need a generous value.
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Zero disables retries.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry; it doubles on every
	// further retry up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// RequestsPerSecond paces requests to the server. Zero means unlimited.
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once. Defaults to 1.
	Burst int

	UserAgent string

	// APIKey, when set, is sent on every request.
	APIKey string

	// Logger receives one record per attempt. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Minute,
		RetryAttempts: 3,
		RetryBackoff:  250 * time.Millisecond,
		MaxBackoff:    10 * time.Second,
		Burst:         1,
		UserAgent:     "galaxyrun/dev",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0, got %v", c.RequestsPerSecond)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	return nil
}
