package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StageConfig is one configured pipeline stage
type StageConfig struct {
	ID        string   `yaml:"id"`
	Optional  bool     `yaml:"optional"`
	MimeTypes []string `yaml:"mimetypes"`
}

// PipelineConfig is the ordered stage list plus the global mimetype allow-list
type PipelineConfig struct {
	Stages    []StageConfig `yaml:"stages"`
	MimeTypes []string      `yaml:"mimetypes"`
}

// DefaultMimeTypes are accepted when the pipeline file names none
var DefaultMimeTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/tiff",
}

// DefaultPipeline runs only the built-in default stage
func DefaultPipeline() *PipelineConfig {
	return &PipelineConfig{
		Stages:    []StageConfig{{ID: "default"}},
		MimeTypes: append([]string(nil), DefaultMimeTypes...),
	}
}

// LoadPipeline loads the pipeline definition from a YAML file.
// An empty path yields DefaultPipeline.
func LoadPipeline(path string) (*PipelineConfig, error) {
	if path == "" {
		return DefaultPipeline(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config %s: %w", path, err)
	}

	var pc PipelineConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
	}

	if len(pc.MimeTypes) == 0 {
		pc.MimeTypes = append([]string(nil), DefaultMimeTypes...)
	}

	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config %s: %w", path, err)
	}

	return &pc, nil
}

// Validate checks the stage list
func (pc *PipelineConfig) Validate() error {
	if len(pc.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	seen := make(map[string]bool, len(pc.Stages))
	for i, s := range pc.Stages {
		if s.ID == "" {
			return fmt.Errorf("stage %d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("stage %q configured twice", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// MimeTypesFor returns the allow-list of a stage, inheriting the global list
func (pc *PipelineConfig) MimeTypesFor(s StageConfig) []string {
	if len(s.MimeTypes) > 0 {
		return s.MimeTypes
	}
	return pc.MimeTypes
}
