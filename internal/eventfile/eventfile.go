// Package eventfile loads the organizer's competition config from YAML and
// reloads it when the file changes.
package eventfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/judging-portal/internal/models"
)

// Load reads and decodes a competition config. Unknown keys are rejected.
func Load(path string) (models.CompetitionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.CompetitionConfig{}, fmt.Errorf("read event file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a competition config and applies defaults.
func Parse(data []byte) (models.CompetitionConfig, error) {
	var cfg models.CompetitionConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return models.CompetitionConfig{}, fmt.Errorf("decode event file: %w", err)
	}

	if cfg.Visibility == "" {
		cfg.Visibility = models.VisibilityPublic
	}
	if cfg.Registration == "" {
		cfg.Registration = models.RegistrationClosed
	}
	return cfg, nil
}

// Write encodes cfg to path, replacing the file atomically.
func Write(path string, cfg models.CompetitionConfig) error {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encode event file: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".event-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
