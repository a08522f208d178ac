package categorize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoValidPath is returned when a response contains no admissible category path.
var ErrNoValidPath = errors.New("no valid category path in response")

// NormalizeSeparators removes whitespace around every ">" so "A > B >C" reads "A>B>C".
func NormalizeSeparators(s string) string {
	parts := strings.Split(s, PathSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, PathSeparator)
}

// ExtractPath finds the first admissible path contained in a model response.
// Candidates are tried second level outer, third level inner, both in taxonomy order.
func (t Taxonomy) ExtractPath(response string) (string, error) {
	normalized := NormalizeSeparators(response)
	for _, second := range t.SecondLevel {
		prefix := t.Root + PathSeparator + second.Name + PathSeparator
		if !strings.Contains(normalized, prefix) {
			continue
		}
		for _, third := range t.ThirdLevel {
			path := prefix + third.Name
			if strings.Contains(normalized, path) {
				return path, nil
			}
		}
	}
	return "", ErrNoValidPath
}

// SplitPath splits a category path into its three levels.
func SplitPath(path string) (root, second, third string, err error) {
	parts := strings.Split(path, PathSeparator)
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("incorrect path format: %q has %d level(s), want 3", path, len(parts))
	}
	return parts[0], parts[1], parts[2], nil
}
