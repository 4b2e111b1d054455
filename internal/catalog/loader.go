package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/agentflow/internal/domain"
)

// File is the YAML layout of a scenario catalog file.
type File struct {
	Scenarios []domain.Scenario `yaml:"scenarios"`
}

// Parse decodes scenarios from YAML. Validation happens when the scenarios
// are added to a catalog.
func Parse(data []byte) ([]domain.Scenario, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	return f.Scenarios, nil
}

// LoadFile reads a YAML scenario file.
func LoadFile(path string) ([]domain.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Load returns the built-in catalog, extended by the scenarios in path when
// path is not empty.
func Load(path string) (*Catalog, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return base.With(extra...)
}
