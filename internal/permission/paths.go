package permission

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// IsInside reports whether candidate resolves to the workspace root or a
// descendant of it. The candidate is canonicalized one component at a
// time so that symlinks are resolved before any `..` is applied; cleaning
// the path lexically first would let `link/..` collapse to the link's
// directory while the OS resolves it to the parent of the link's target.
// A component that does not exist yet resolves lexically, since nothing
// nonexistent can be a symlink.
//
// Any resolution failure means containment cannot be proven; callers must
// treat that as not contained, never as an allowance.
func IsInside(candidate, root string) (bool, error) {
	resolvedRoot, err := filepath.EvalSymlinks(filepath.Clean(root))
	if err != nil {
		return false, err
	}

	if !filepath.IsAbs(candidate) {
		// Plain concatenation: filepath.Join would collapse `..` before
		// symlinks are seen.
		candidate = resolvedRoot + string(filepath.Separator) + candidate
	}

	resolved, err := resolvePath(candidate)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil {
		return false, err
	}
	if rel == "." {
		return true, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}
	return true, nil
}

// resolvePath canonicalizes an absolute path component by component,
// resolving each existing prefix through symlinks before `..` applies to
// it. Components past the last existing element are appended lexically.
func resolvePath(path string) (string, error) {
	volume := filepath.VolumeName(path)
	current := volume + string(filepath.Separator)
	exists := true

	rest := filepath.ToSlash(path[len(volume):])
	for _, comp := range strings.Split(rest, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			// current is already canonical, so its lexical parent is its
			// real parent.
			current = filepath.Dir(current)
			continue
		}

		next := filepath.Join(current, comp)
		if !exists {
			current = next
			continue
		}

		resolved, err := filepath.EvalSymlinks(next)
		switch {
		case err == nil:
			current = resolved
		case errors.Is(err, os.ErrNotExist):
			exists = false
			current = next
		default:
			return "", err
		}
	}
	return current, nil
}
