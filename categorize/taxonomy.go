package categorize

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// PathSeparator joins the three levels of a category path.
	PathSeparator = ">"

	// FallbackLabel fills levels two and three of the path stored when no valid answer was obtained.
	FallbackLabel = "Unknown"

	// FallbackResponse is stored in place of the model response when retries are exhausted.
	FallbackResponse = "NO VALID RESPONSE"
)

//go:embed default_taxonomy.yaml
var defaultTaxonomyYAML []byte

// Label is one admissible value for a taxonomy level.
type Label struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Taxonomy is the fixed three-level label grammar: every Root>SecondLevel>ThirdLevel combination is a valid path.
type Taxonomy struct {
	Root        string  `yaml:"root" json:"root"`
	SecondLevel []Label `yaml:"second_level" json:"second_level"`
	ThirdLevel  []Label `yaml:"third_level" json:"third_level"`
}

// DefaultTaxonomy returns the embedded Computers & Electronics taxonomy.
func DefaultTaxonomy() Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy: %v", err))
	}
	return t
}

// LoadTaxonomy reads and validates a YAML taxonomy file.
func LoadTaxonomy(path string) (Taxonomy, error) {
	if path == "" {
		return Taxonomy{}, errors.New("LoadTaxonomy: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("LoadTaxonomy: read file: %w", err)
	}
	t, err := ParseTaxonomy(b)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("LoadTaxonomy: %s: %w", path, err)
	}
	return t, nil
}

func ParseTaxonomy(b []byte) (Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Taxonomy{}, fmt.Errorf("unmarshal taxonomy: %w", err)
	}
	t.Root = strings.TrimSpace(t.Root)
	trimLabels(t.SecondLevel)
	trimLabels(t.ThirdLevel)
	if err := t.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return t, nil
}

func trimLabels(labels []Label) {
	for i := range labels {
		labels[i].Name = strings.TrimSpace(labels[i].Name)
		labels[i].Description = strings.TrimSpace(labels[i].Description)
	}
}

func (t Taxonomy) Validate() error {
	if t.Root == "" {
		return errors.New("taxonomy: root is empty")
	}
	if strings.Contains(t.Root, PathSeparator) {
		return fmt.Errorf("taxonomy: root %q contains %q", t.Root, PathSeparator)
	}
	if err := validateLevel("second_level", t.SecondLevel); err != nil {
		return err
	}
	return validateLevel("third_level", t.ThirdLevel)
}

func validateLevel(level string, labels []Label) error {
	if len(labels) == 0 {
		return fmt.Errorf("taxonomy: %s has no labels", level)
	}
	seen := make(map[string]struct{}, len(labels))
	for i, l := range labels {
		switch {
		case l.Name == "":
			return fmt.Errorf("taxonomy: %s[%d] has an empty name", level, i)
		case strings.Contains(l.Name, PathSeparator):
			return fmt.Errorf("taxonomy: %s label %q contains %q", level, l.Name, PathSeparator)
		case strings.EqualFold(l.Name, FallbackLabel):
			return fmt.Errorf("taxonomy: %s label %q is reserved", level, l.Name)
		}
		key := strings.ToLower(l.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("taxonomy: duplicate %s label %q", level, l.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Path joins a second- and third-level label under the root.
func (t Taxonomy) Path(second, third string) string {
	return t.Root + PathSeparator + second + PathSeparator + third
}

// FallbackPath is the path recorded when a round never produced a valid answer.
func (t Taxonomy) FallbackPath() string {
	return t.Path(FallbackLabel, FallbackLabel)
}

// Size is the number of admissible paths.
func (t Taxonomy) Size() int {
	return len(t.SecondLevel) * len(t.ThirdLevel)
}
