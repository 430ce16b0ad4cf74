package config

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/diffdrive/logging"
)

// Read reads a config from the given file, substituting ${VAR} references from the environment.
// Files ending in .yaml or .yml are read as YAML, everything else as JSON.
func Read(
	ctx context.Context,
	filePath string,
	logger logging.Logger,
) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(ctx, filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(
	ctx context.Context,
	originalPath string,
	r io.Reader,
	logger logging.Logger,
) (*Config, error) {
	cfg := Config{
		ConfigFilePath: originalPath,
	}
	if isYAML(originalPath) {
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to decode Config from yaml")
		}
	} else {
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to decode Config from json")
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "failed to process Config")
	}
	logger.CDebugw(ctx, "read config",
		"path", originalPath,
		"frequency_hz", cfg.FrequencyHz,
		"left", cfg.Controller.LeftWheelNames,
		"right", cfg.Controller.RightWheelNames)
	return &cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
