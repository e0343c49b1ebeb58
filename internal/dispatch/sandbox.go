package dispatch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/scriptserv/internal/errors"
)

// Root is a document root. Every path it resolves stays below it, both
// lexically and after symlinks are followed.
type Root struct {
	dir string
}

// NewRoot opens dir as a document root. dir must exist and be a directory.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving document root %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving document root %s: %w", dir, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("document root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", dir)
	}
	return &Root{dir: resolved}, nil
}

// Dir returns the absolute, symlink-free root directory.
func (r *Root) Dir() string { return r.dir }

// Resolve maps a request path onto a regular file below the root. Escaping
// the root yields ErrForbidden; a missing or non-regular file ErrNotFound.
func (r *Root) Resolve(urlPath string) (string, fs.FileInfo, error) {
	if strings.ContainsRune(urlPath, 0) {
		return "", nil, errors.NewForbiddenError(urlPath)
	}

	joined := filepath.Join(r.dir, filepath.FromSlash(urlPath))
	if !r.contains(joined) {
		return "", nil, errors.NewForbiddenError(urlPath)
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", nil, errors.NewNotFoundError(urlPath, err)
	}
	if !r.contains(resolved) {
		return "", nil, errors.NewForbiddenError(urlPath)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", nil, errors.NewNotFoundError(urlPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, errors.NewNotFoundError(urlPath, fmt.Errorf("%s is not a regular file", urlPath))
	}
	return resolved, info, nil
}

// Rel returns path relative to the root, in slash form with a leading "/".
func (r *Root) Rel(path string) (string, bool) {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil || !r.contains(path) {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

func (r *Root) contains(path string) bool {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
