package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"progresskit/core"
)

// titleCatalog is the on-disk shape of a title definitions file.
type titleCatalog struct {
	Titles []core.TitleDefinition `json:"titles" yaml:"titles"`
}

// LoadTitles reads title definitions from a YAML or JSON catalog file.
// Definition order in the file is preserved.
func LoadTitles(path string) ([]core.TitleDefinition, error) {
	data, err := os.ReadFile(path) // #nosec G304 - catalog path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to read titles file %s: %w", path, err)
	}

	var catalog titleCatalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &catalog)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &catalog)
	default:
		return nil, fmt.Errorf("unsupported titles file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse titles file %s: %w", path, err)
	}

	seen := map[string]struct{}{}
	for i, def := range catalog.Titles {
		if def.ID == "" {
			return nil, fmt.Errorf("titles[%d]: id cannot be empty", i)
		}
		if def.Name == "" {
			return nil, fmt.Errorf("title %s: name cannot be empty", def.ID)
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("duplicate title id %s", def.ID)
		}
		seen[def.ID] = struct{}{}
	}
	return catalog.Titles, nil
}
