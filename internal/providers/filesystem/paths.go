package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	errEmptyName     = errors.New("name is empty")
	errNullByte      = errors.New("name contains a null byte")
	errSeparator     = errors.New("name contains a path separator")
	errParentSegment = errors.New("name contains a parent directory segment")
	errAbsolute      = errors.New("name is an absolute path")
	errEscapesRoot   = errors.New("path escapes root")
	errNoFileName    = errors.New("file entry has no name beneath the root")
)

// Sanitizer resolves user-supplied names beneath a fixed absolute root.
// It only inspects strings; it never touches the filesystem.
type Sanitizer struct {
	root string
}

// NewSanitizer binds a sanitizer to the absolute, cleaned form of root
func NewSanitizer(root string) (*Sanitizer, error) {
	if root == "" {
		return nil, newError("sanitize", root, ErrInvalidPath, errEmptyName)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, newError("sanitize", root, ErrInvalidPath, err)
	}
	return &Sanitizer{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root
func (s *Sanitizer) Root() string {
	return s.root
}

// Segment resolves a single-segment name (a folder name) beneath the root
func (s *Sanitizer) Segment(name string) (string, error) {
	return SanitizeSegment(s.root, name)
}

// Relative resolves a slash-separated relative path beneath base, which must
// itself be inside the root.
func (s *Sanitizer) Relative(base, rel string) (string, error) {
	if !within(s.root, filepath.Clean(base)) {
		return "", newError("sanitize", base, ErrInvalidPath, errEscapesRoot)
	}
	return SanitizeRelative(base, rel)
}

// Sanitize resolves a user-supplied single-segment name beneath root
func Sanitize(root, name string) (string, error) {
	s, err := NewSanitizer(root)
	if err != nil {
		return "", err
	}
	return s.Segment(name)
}

// SanitizeSegment joins one validated path segment onto an absolute root
func SanitizeSegment(root, name string) (string, error) {
	if err := validateSegment(name); err != nil {
		return "", newError("sanitize", name, ErrInvalidPath, err)
	}
	path := filepath.Join(root, name)
	if !within(root, path) {
		return "", newError("sanitize", name, ErrInvalidPath, errEscapesRoot)
	}
	return path, nil
}

// SanitizeRelative joins a slash-separated relative path (an archive entry
// name) onto an absolute root. Backslashes are treated as separators so
// archives produced on Windows cannot smuggle a traversal past the check.
func SanitizeRelative(root, rel string) (string, error) {
	if rel == "" {
		return "", newError("sanitize", rel, ErrInvalidPath, errEmptyName)
	}
	if strings.ContainsRune(rel, 0) {
		return "", newError("sanitize", rel, ErrInvalidPath, errNullByte)
	}

	normalized := strings.ReplaceAll(rel, `\`, "/")
	if strings.HasPrefix(normalized, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" || hasDriveLetter(normalized) {
		return "", newError("sanitize", rel, ErrInvalidPath, errAbsolute)
	}

	segments := make([]string, 0, strings.Count(normalized, "/")+1)
	for _, seg := range strings.Split(normalized, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", newError("sanitize", rel, ErrInvalidPath, errParentSegment)
		}
		segments = append(segments, seg)
	}

	path := filepath.Join(append([]string{root}, segments...)...)
	if !within(root, path) {
		return "", newError("sanitize", rel, ErrInvalidPath, errEscapesRoot)
	}
	return path, nil
}

func validateSegment(name string) error {
	switch {
	case name == "":
		return errEmptyName
	case strings.ContainsRune(name, 0):
		return errNullByte
	case name == "." || name == "..":
		return errParentSegment
	case strings.ContainsAny(name, `/\`):
		return errSeparator
	case filepath.IsAbs(name) || filepath.VolumeName(name) != "" || hasDriveLetter(name):
		return errAbsolute
	}
	return nil
}

// hasDriveLetter catches "C:" style prefixes on every platform
func hasDriveLetter(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// within reports whether path equals root or lies beneath it. Both must be
// clean absolute paths.
func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}
