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

package shared

// Persistent flags bound by the root command. Commands read them through the
// getters below rather than through cobra, so they work the same whether a
// command runs under the root or on its own in a test.
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string
)

// Set from main with the values injected at link time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers hands the root command the variables behind
// --verbose, --quiet, --json and --config, in that order.
func RegisterFlagPointers() (*bool, *bool, *bool, *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag
}

// SetVersion records the build's version, commit and date.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVerbose reports --verbose: debug logging.
func GetVerbose() bool { return verboseFlag }

// GetQuiet reports --quiet: only errors are logged and reports are skipped.
func GetQuiet() bool { return quietFlag }

// GetJSON reports --json: commands print a single JSON envelope.
func GetJSON() bool { return jsonFlag }

// GetConfigPath is the --config file, or "" for the default location.
func GetConfigPath() string { return configFlag }

// GetVersion returns the version, commit and build date set by SetVersion.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetConfigPathForTest points LoadConfig at path; "" restores the default.
func SetConfigPathForTest(path string) { configFlag = path }

// SetJSONForTest toggles JSON output.
func SetJSONForTest(v bool) { jsonFlag = v }
