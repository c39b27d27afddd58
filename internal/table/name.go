package table

import (
	"fmt"
	"strings"
)

// CleanName validates a dataset name and returns its canonical form.
// A single leading "/" is stripped so HDF-style keys such as "/bar" work.
// Names may not be empty, contain path separators, or start with a dot.
func CleanName(name string) (string, error) {
	clean := strings.TrimPrefix(name, "/")
	switch {
	case clean == "":
		return "", fmt.Errorf("%w: empty dataset name", ErrInvalidName)
	case strings.ContainsAny(clean, `/\`):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.HasPrefix(clean, "."):
		return "", fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsRune(clean, 0):
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	}
	return clean, nil
}
