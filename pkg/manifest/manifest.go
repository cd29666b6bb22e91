package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest is the metadata a plugin declares about itself
type Manifest struct {
	PluginID    string `yaml:"plugin_id" json:"plugin_id"`
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	PluginType  string `yaml:"plugin_type" json:"plugin_type"`
	Description string `yaml:"description" json:"description"`
	// Document is literal text or a path to a text file inside the package.
	Document string `yaml:"document" json:"document"`
}

// manifest file names probed at the package root, in order
var manifestNames = []string{"plugin.yaml", "plugin.yml", "plugin.json"}

// LoadManifestFromDir loads a plugin manifest from an unpacked package root
func LoadManifestFromDir(dir string) (*Manifest, error) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadManifest(path)
	}
	return nil, fmt.Errorf("no manifest found (expected one of %v)", manifestNames)
}

// LoadManifest loads and parses a plugin manifest from a file. YAML is a
// superset of JSON, so plugin.json parses through the same path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Manifest) validate() error {
	if m.PluginID == "" {
		return fmt.Errorf("manifest is missing plugin_id")
	}
	if m.Name == "" {
		return fmt.Errorf("manifest is missing name")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest is missing version")
	}
	return nil
}
