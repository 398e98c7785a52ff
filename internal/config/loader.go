// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	xglog "github.com/aleczinn/loki-sub000/internal/log"
)

// Loader builds an AppConfig from defaults, an optional file and the
// environment.
type Loader struct {
	path   string
	env    envReader
	logger zerolog.Logger
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(path string) *Loader {
	logger := xglog.WithComponent("config")
	return &Loader{path: path, env: newEnvReader(logger), logger: logger}
}

// Load returns the validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	if l.path != "" {
		if err := l.mergeFile(&cfg); err != nil {
			return AppConfig{}, err
		}
	}
	l.env.apply(&cfg)
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// mergeFile decodes the file over cfg; keys absent from the file keep their
// current value.
func (l *Loader) mergeFile(cfg *AppConfig) error {
	// #nosec G304 -- operator-supplied config path
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Info().Str(xglog.FieldPath, l.path).Msg("config file not found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := decodeStrict(data, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", l.path, err)
	}
	l.logger.Debug().Str(xglog.FieldPath, l.path).Msg("config file loaded")
	return nil
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}
