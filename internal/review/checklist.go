package review

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChecklistFile is the on-disk form of a checklist set. Items are either
// plain strings or {content: ...} mappings. JSON is accepted as well,
// being a subset of YAML.
type ChecklistFile struct {
	Name       string          `yaml:"name,omitempty"`
	Checklists []checklistSpec `yaml:"checklists"`
}

type checklistSpec struct {
	Content string `yaml:"content"`
}

func (c *checklistSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Content = node.Value
		return nil
	}
	type plain checklistSpec
	return node.Decode((*plain)(c))
}

// LoadChecklistFile reads a checklist file and returns the item contents
// in file order. Blank items are skipped.
func LoadChecklistFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checklist file: %w", err)
	}
	return ParseChecklists(data)
}

// ParseChecklists parses checklist file contents.
func ParseChecklists(data []byte) ([]string, error) {
	var f ChecklistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing checklist file: %w", err)
	}
	var out []string
	for _, c := range f.Checklists {
		if s := strings.TrimSpace(c.Content); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("checklist file has no items")
	}
	return out, nil
}
