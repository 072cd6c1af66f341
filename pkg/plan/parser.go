package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/reasoner"
)

// planFile is the on-disk plan format accepted by the CLI.
type planFile struct {
	Mission   string             `json:"mission" yaml:"mission"`
	Checklist []string           `json:"checklist,omitempty" yaml:"checklist,omitempty"`
	Tasks     []reasoner.TaskSpec `json:"tasks" yaml:"tasks"`
}

// ParsedPlan is a plan file after parsing, before it is bound to a mission.
type ParsedPlan struct {
	PrimeDirective string
	Checklist      []string
	Specs          []reasoner.TaskSpec
}

// ParseFile reads a YAML or JSON plan file. The file's task graph is
// validated for structure but not yet attached to a mission ID.
func ParseFile(path string) (*ParsedPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return Parse(data, strings.ToLower(filepath.Ext(path)))
}

// Parse decodes plan data in the format implied by ext (".json" or YAML
// otherwise) and validates the task graph.
func Parse(data []byte, ext string) (*ParsedPlan, error) {
	var file planFile
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, errors.New(errors.CodeInvalidPlan, "malformed plan file", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errors.New(errors.CodeInvalidPlan, "malformed plan file", err)
		}
	}
	if file.Mission == "" {
		return nil, errors.New(errors.CodeInvalidPlan, "plan file missing mission directive", nil)
	}
	if len(file.Tasks) == 0 {
		return nil, errors.New(errors.CodeInvalidPlan, "plan file has no tasks", nil)
	}

	// structural validation on a throwaway mission binding
	if err := FromSpecs("validate", file.Tasks).Validate(); err != nil {
		return nil, err
	}

	return &ParsedPlan{
		PrimeDirective: file.Mission,
		Checklist:      file.Checklist,
		Specs:          file.Tasks,
	}, nil
}
