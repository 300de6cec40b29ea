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

// Package jq filters JSON documents with jq expressions.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	"github.com/tombee/galaxyrun/pkg/errors"
)

const (
	// DefaultTimeout bounds one evaluation.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the largest input document accepted (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Filter is a compiled jq expression.
type Filter struct {
	expression   string
	code         *gojq.Code
	timeout      time.Duration
	maxInputSize int
}

// Compile parses and compiles expression. Syntax errors are returned as
// ValidationErrors naming the expression.
func Compile(expression string) (*Filter, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "jq",
			Message: fmt.Sprintf("invalid jq expression %q: %v", expression, err),
		}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "jq",
			Message: fmt.Sprintf("jq compilation failed for %q: %v", expression, err),
		}
	}
	return &Filter{
		expression:   expression,
		code:         code,
		timeout:      DefaultTimeout,
		maxInputSize: DefaultMaxInputSize,
	}, nil
}

// WithTimeout returns a copy of f with a different evaluation timeout.
func (f *Filter) WithTimeout(d time.Duration) *Filter {
	cp := *f
	cp.timeout = d
	return &cp
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expression
}

// Run evaluates the filter against v, which is first converted to plain
// JSON values, and returns every result.
func (f *Filter) Run(ctx context.Context, v any) ([]any, error) {
	data, err := f.normalize(v)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var results []any
	iter := f.code.RunWithContext(ctx, data)
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := out.(error); isErr {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("jq execution timeout after %v: %w", f.timeout, ctx.Err())
			}
			return nil, fmt.Errorf("jq: %w", err)
		}
		results = append(results, out)
	}
	return results, nil
}

// normalize turns structs and typed maps into the map[string]any / []any
// values gojq operates on.
func (f *Filter) normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	if len(raw) > f.maxInputSize {
		return nil, fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)", len(raw), f.maxInputSize)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	return data, nil
}

// Apply compiles expression and runs it against v. An empty expression
// returns v unchanged. One result is returned as is, several as a slice.
func Apply(ctx context.Context, expression string, v any) (any, error) {
	if expression == "" {
		return v, nil
	}
	f, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	results, err := f.Run(ctx, v)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
