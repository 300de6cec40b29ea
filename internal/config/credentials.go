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

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tombee/galaxyrun/internal/secrets"
	"github.com/tombee/galaxyrun/pkg/errors"
)

// Credentials locate and authenticate against a Galaxy server.
type Credentials struct {
	URL    string
	APIKey string

	// History is the default history name; optional.
	History string
}

// Credential keys in a credentials file.
const (
	KeyURL     = "galaxy.url"
	KeyAPIKey  = "galaxy.key"
	KeyHistory = "galaxy.history"
)

var credentialEnv = map[string]string{
	KeyURL:     "GALAXY_URL",
	KeyAPIKey:  "GALAXY_API_KEY",
	KeyHistory: "GALAXY_HISTORY",
}

// LoadCredentials reads a key/value credentials source: a Java style
// .properties file, YAML, JSON or a .env file. GALAXY_URL, GALAXY_API_KEY and
// GALAXY_HISTORY override the file. An empty path reads the environment only.
// The API key may be a secret reference such as keyring:<name>.
func LoadCredentials(ctx context.Context, path string) (*Credentials, error) {
	creds, err := readCredentials(path)
	if err != nil {
		return nil, err
	}
	return creds.resolve(ctx, secrets.DefaultResolver())
}

func readCredentials(path string) (*Credentials, error) {
	v := viper.New()
	for key, env := range credentialEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, &errors.ConfigError{Key: key, Reason: "cannot bind environment", Cause: err}
		}
	}

	if path != "" {
		expanded, err := expandHome(path)
		if err != nil {
			return nil, &errors.ConfigError{Key: "galaxy.credentials_file", Reason: "invalid path", Cause: err}
		}
		v.SetConfigFile(expanded)
		v.SetConfigType(credentialFormat(expanded))
		if err := v.ReadInConfig(); err != nil {
			return nil, &errors.ConfigError{
				Key:    "galaxy.credentials_file",
				Reason: fmt.Sprintf("failed to read %s", expanded),
				Cause:  err,
			}
		}
	}

	return &Credentials{
		URL:     lookup(v, KeyURL),
		APIKey:  lookup(v, KeyAPIKey),
		History: lookup(v, KeyHistory),
	}, nil
}

// lookup reads a dotted key, falling back to its environment spelling
// (galaxy_url) as found in .env files.
func lookup(v *viper.Viper, key string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return strings.TrimSpace(v.GetString(strings.ToLower(credentialEnv[key])))
}

func credentialFormat(path string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "yaml", "yml":
		return "yaml"
	case "json":
		return "json"
	case "env":
		return "dotenv"
	case "properties", "props", "":
		return "properties"
	default:
		return ext
	}
}

func (c *Credentials) resolve(ctx context.Context, r *secrets.Resolver) (*Credentials, error) {
	if c.URL == "" {
		return nil, &errors.ConfigError{Key: KeyURL, Reason: "Galaxy server URL is not set (galaxy.url or GALAXY_URL)"}
	}
	if c.APIKey == "" {
		return nil, &errors.ConfigError{Key: KeyAPIKey, Reason: "Galaxy API key is not set (galaxy.key or GALAXY_API_KEY)"}
	}
	key, err := r.Resolve(ctx, c.APIKey)
	if err != nil {
		return nil, &errors.ConfigError{Key: KeyAPIKey, Reason: "cannot resolve API key", Cause: err}
	}
	out := *c
	out.APIKey = key
	return &out, nil
}

// Credentials returns the server credentials: the galaxy section first,
// then the credentials file for anything it leaves empty. The API key
// reference, if any, is resolved.
func (c *Config) Credentials(ctx context.Context) (*Credentials, error) {
	return c.credentials(ctx, secrets.DefaultResolver())
}

func (c *Config) credentials(ctx context.Context, r *secrets.Resolver) (*Credentials, error) {
	creds := &Credentials{
		URL:     c.Galaxy.URL,
		APIKey:  c.Galaxy.APIKey,
		History: c.Galaxy.DefaultHistory,
	}
	if c.Galaxy.CredentialsFile != "" {
		file, err := readCredentials(c.Galaxy.CredentialsFile)
		if err != nil {
			return nil, err
		}
		if creds.URL == "" {
			creds.URL = file.URL
		}
		if creds.APIKey == "" {
			creds.APIKey = file.APIKey
		}
		if creds.History == "" {
			creds.History = file.History
		}
	}
	return creds.resolve(ctx, r)
}
