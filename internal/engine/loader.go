package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
)

// templateYAML is the on-disk shape of a workflow template.
type templateYAML struct {
	Type        string           `yaml:"type"`
	Description string           `yaml:"description,omitempty"`
	Steps       []StepDefinition `yaml:"steps"`
}

// ParseTemplateYAML parses one template file and validates its step
// graph. Dependencies must name earlier steps; execution is strictly
// in order.
func ParseTemplateYAML(data []byte) (string, []StepDefinition, error) {
	var t templateYAML
	if err := yaml.Unmarshal(data, &t); err != nil {
		return "", nil, fmt.Errorf("parse workflow template YAML: %w", err)
	}
	if t.Type == "" {
		return "", nil, fmt.Errorf("workflow template missing type")
	}
	if len(t.Steps) == 0 {
		return "", nil, fmt.Errorf("workflow template %q has no steps", t.Type)
	}

	seen := make(map[string]bool, len(t.Steps))
	for i, s := range t.Steps {
		if s.ID == "" {
			return "", nil, fmt.Errorf("workflow template %q: step %d has no id", t.Type, i)
		}
		if s.Type == "" {
			return "", nil, fmt.Errorf("workflow template %q: step %q has no type", t.Type, s.ID)
		}
		if seen[s.ID] {
			return "", nil, fmt.Errorf("workflow template %q: duplicate step id %q", t.Type, s.ID)
		}
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return "", nil, fmt.Errorf("workflow template %q: step %q depends on %q, which is not an earlier step", t.Type, s.ID, dep)
			}
		}
		seen[s.ID] = true
	}
	return t.Type, t.Steps, nil
}

// LoadTemplates registers every *.yaml / *.yml template found in dir,
// overriding built-ins of the same type. A missing directory is not an
// error.
func (e *Engine) LoadTemplates(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read workflow template dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read workflow template %s: %w", name, err)
		}
		workflowType, steps, err := ParseTemplateYAML(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		e.RegisterTemplate(workflowType, steps)
		e.logger.Info("workflow template loaded",
			"type", workflowType,
			"file", name,
			"steps", len(steps))
	}
	return nil
}

// TemplateYAML renders a registered template in the on-disk format, so
// built-ins can be exported and customized.
func (e *Engine) TemplateYAML(workflowType string) ([]byte, error) {
	steps, ok := e.template(workflowType)
	if !ok {
		return nil, deckerrors.ErrWorkflowTypeUnknown(workflowType)
	}
	return yaml.Marshal(templateYAML{Type: workflowType, Steps: steps})
}
