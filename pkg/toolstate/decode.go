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

// Package toolstate decodes the loosely typed parameter-state encoding that
// Galaxy embeds in workflow steps ("tool_state").
//
// Each entry of a tool-state document is a token whose value may itself be a
// JSON-encoded string, possibly encoded more than once. Decode unwraps those
// layers and yields one of:
//
//	string, float64, int64, bool, map[string]any (recursively decoded), nil
//
// Arrays (repeat groups) are not interpreted and are returned as their raw text.
package toolstate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/galaxyrun/pkg/errors"
)

var (
	doublePattern  = regexp.MustCompile(`^[-+]?[0-9]*\.[0-9]+$`)
	integerPattern = regexp.MustCompile(`^[-+]?[0-9]+$`)
)

// Separators used by the flattened map-literal form.
const (
	entrySeparator    = `, "`
	keyValueSeparator = `": `
)

// Decode converts a raw tool-state token into a typed value.
//
// Precedence, first match wins:
//  1. a double-quoted token is unquoted and decoded again
//  2. a brace-wrapped token is decoded as a map
//  3. true/false in any case is a bool
//  4. a signed decimal with a fraction is a float64
//  5. a signed integer is an int64
//  6. null is nil
//  7. anything else is returned unchanged as a string
func Decode(token string) (any, error) {
	if isQuoted(token) {
		return Decode(unquote(token))
	}

	if isBraced(token) {
		return decodeMap(token)
	}

	if strings.EqualFold(token, "true") || strings.EqualFold(token, "false") {
		return strings.EqualFold(token, "True"), nil
	}

	if doublePattern.MatchString(token) {
		if f, err := strconv.ParseFloat(token, 64); err == nil {
			return f, nil
		}
	}

	if integerPattern.MatchString(token) {
		// Values beyond int64 stay strings rather than losing precision.
		if i, err := strconv.ParseInt(token, 10, 64); err == nil {
			return i, nil
		}
	}

	if token == "null" {
		return nil, nil
	}

	return token, nil
}

// DecodeDocument decodes a whole tool-state document. raw may be the JSON
// object itself or a JSON string containing it. Entries whose value is null
// are kept with a nil value.
func DecodeDocument(raw []byte) (map[string]any, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return map[string]any{}, nil
	}

	// Older exports store the document as a string.
	if isQuoted(text) {
		var inner string
		if err := json.Unmarshal([]byte(text), &inner); err != nil {
			return nil, &errors.ParseError{Source: "tool_state", Reason: "invalid string encoding", Cause: err}
		}
		text = strings.TrimSpace(inner)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return nil, &errors.ParseError{Source: "tool_state", Reason: "not an object", Cause: err}
	}

	state := make(map[string]any, len(entries))
	for key, value := range entries {
		token := strings.TrimSpace(string(value))
		if token == "null" {
			state[key] = nil
			continue
		}
		decoded, err := Decode(token)
		if err != nil {
			return nil, fmt.Errorf("tool_state entry %q: %w", key, err)
		}
		state[key] = decoded
	}
	return state, nil
}

// Quote wraps token in a JSON string literal, the inverse of one unwrapping
// step in Decode.
func Quote(token string) string {
	b, _ := json.Marshal(token)
	return string(b)
}

func isQuoted(token string) bool {
	return len(token) >= 2 && token[0] == '"' && token[len(token)-1] == '"'
}

func isBraced(token string) bool {
	return len(token) >= 2 && token[0] == '{' && token[len(token)-1] == '}'
}

// unquote removes exactly one layer of quoting. JSON escapes are honoured
// when the token is a valid JSON string; otherwise the outer pair is dropped.
func unquote(token string) string {
	var s string
	if err := json.Unmarshal([]byte(token), &s); err == nil {
		return s
	}
	return token[1 : len(token)-1]
}

func decodeMap(token string) (map[string]any, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(token), &entries); err == nil {
		out := make(map[string]any, len(entries))
		for key, value := range entries {
			decoded, err := Decode(strings.TrimSpace(string(value)))
			if err != nil {
				return nil, err
			}
			out[key] = decoded
		}
		return out, nil
	}
	return decodeFlattenedMap(token)
}

// decodeFlattenedMap handles map literals that are not valid JSON, typically
// because inner quotes were not escaped: {"a": "x", "b": "y"}.
func decodeFlattenedMap(token string) (map[string]any, error) {
	body := strings.TrimSpace(token[1 : len(token)-1])
	out := make(map[string]any)
	if body == "" {
		return out, nil
	}

	for _, entry := range strings.Split(body, entrySeparator) {
		key, value, ok := strings.Cut(entry, keyValueSeparator)
		if !ok {
			return nil, &errors.ParseError{
				Source: "tool_state",
				Reason: fmt.Sprintf("map entry %q has no key/value separator", entry),
			}
		}
		key = stripOneQuote(key)
		decoded, err := Decode(stripOneQuote(value))
		if err != nil {
			return nil, err
		}
		out[key] = decoded
	}
	return out, nil
}

func stripOneQuote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

// Keys returns the keys of a decoded map in sorted order.
func Keys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Format renders a decoded value for display.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range Keys(val) {
			parts = append(parts, fmt.Sprintf("%s: %s", k, Format(val[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}
