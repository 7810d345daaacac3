package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/dobi/core/registry"
)

// LoadSeed reads the charger list at path. JSON and YAML are both accepted.
// A missing file yields an empty list.
func LoadSeed(path string) ([]registry.SeedEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var reqs []registry.SeedEntry
	if err := yaml.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return reqs, nil
}
