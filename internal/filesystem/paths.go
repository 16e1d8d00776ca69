package filesystem

import (
	"path/filepath"
	"strings"
)

// Within reports whether path lies inside root (or is root itself).
// Both paths are made absolute and cleaned; symlinks are resolved when
// they exist so a link cannot smuggle a path out of root.
func Within(root, path string) bool {
	r, err := canonical(root)
	if err != nil {
		return false
	}
	p, err := canonical(path)
	if err != nil {
		return false
	}
	if r == p {
		return true
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// IsHidden reports whether the base name of path starts with a dot.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return len(base) > 1 && strings.HasPrefix(base, ".") && base != ".."
}
