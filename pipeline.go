package herisson

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineModule is one module declaration inside a pipeline file.
type PipelineModule struct {
	Name   string `yaml:"name"`
	Config string `yaml:"config"`
}

// Pipeline is a declarative description of several modules, typically wired
// together over loopback buses.
type Pipeline struct {
	Modules []PipelineModule `yaml:"modules"`
}

// LoadPipeline reads a YAML pipeline description. Each module entry carries a
// name and the flat configuration string handed to CreateModule; the file
// format is deliberately thin so that anything expressible through the config
// grammar stays expressible here.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("herisson: reading pipeline file: %w", err)
	}
	return ParsePipeline(data)
}

// ParsePipeline parses a YAML pipeline description from memory.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("herisson: parsing pipeline file: %w", err)
	}
	for i, m := range p.Modules {
		if m.Name == "" {
			return nil, fmt.Errorf("herisson: pipeline module %d has no name", i)
		}
		if m.Config == "" {
			return nil, fmt.Errorf("herisson: pipeline module %q has no config", m.Name)
		}
	}
	return &p, nil
}
