package finishes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration consumed by the CLI.
// Flags given on the command line override file values.
//
//	db: data/finishes.sqlite
//	input_dir: data/inputs
//	report: data/outputs/ingest_report.json
//	debug: false
type FileConfig struct {
	DB       string `yaml:"db"`
	InputDir string `yaml:"input_dir"`
	Report   string `yaml:"report"`
	Debug    bool   `yaml:"debug"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
