package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileDocument struct {
	ActivityTypes []ActivityType `yaml:"activity_types"`
}

// LoadFile reads an activity table from a YAML file. An empty path yields Default().
func LoadFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read activity types file: %w", err)
	}
	return FromYAML(data)
}

// FromYAML parses a document of the form:
//
//	activity_types:
//	  - code: toilet
//	    display_name: Toilet
//	    emoji: "🚽"
//	    max_duration_seconds: 360
func FromYAML(data []byte) (*Registry, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse activity types file: %w", err)
	}
	return New(doc.ActivityTypes...)
}
