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

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tombee/galaxyrun/internal/config"
	"github.com/tombee/galaxyrun/internal/log"
	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/galaxy"
	"github.com/tombee/galaxyrun/pkg/httpclient"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
	"github.com/tombee/galaxyrun/pkg/poller"
)

// LoadConfig loads the file named by --config, or the default location.
func LoadConfig() (*config.Config, error) {
	if path := GetConfigPath(); path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// NewLogger builds the command logger. --verbose and --quiet override the
// configured level.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := cfg.Logging()
	switch {
	case GetVerbose():
		lc.Level = "debug"
	case GetQuiet():
		lc.Level = "error"
	}
	return log.New(lc)
}

// Session is a connection to the configured server.
type Session struct {
	Config      *config.Config
	Credentials *config.Credentials
	Logger      *slog.Logger
	Backend     orchestrator.Backend
}

// Connect resolves credentials and builds the backend selected by
// galaxy.backend.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	creds, err := cfg.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	var backend orchestrator.Backend
	switch cfg.Galaxy.Backend {
	case config.BackendGalaxy:
		hc := cfg.HTTPClient(creds.APIKey)
		hc.Logger = logger
		httpClient, err := httpclient.New(hc)
		if err != nil {
			return nil, &errors.ConfigError{Key: "http", Reason: "invalid HTTP settings", Cause: err}
		}
		client, err := galaxy.New(creds.URL, galaxy.WithHTTPClient(httpClient))
		if err != nil {
			return nil, err
		}
		backend = orchestrator.NewGalaxyBackend(client,
			poller.WithLogger(logger),
			poller.WithSettleDelay(cfg.SettleDelay),
		)
	default:
		return nil, &errors.ConfigError{
			Key:    "galaxy.backend",
			Reason: fmt.Sprintf("unsupported backend %q", cfg.Galaxy.Backend),
		}
	}

	logger.Debug("connected", "url", creds.URL, "api_key", log.SanitizeAPIKey(creds.APIKey))

	return &Session{
		Config:      cfg,
		Credentials: creds,
		Logger:      logger,
		Backend:     backend,
	}, nil
}
