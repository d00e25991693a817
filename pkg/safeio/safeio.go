// Package safeio holds the file operations sitekeeper performs on a project
// tree. Every destructive or writing call is confined to the project root.
package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/sitekeeper/pkg/siteerrors"
)

// CleanUserPath cleans a user-provided relative path and rejects traversal attempts.
// Returns paths with forward slashes for cross-platform consistency.
func CleanUserPath(p string) (string, error) {
	c := filepath.Clean(p)
	if c == ".." || strings.HasPrefix(c, ".."+string(filepath.Separator)) || strings.Contains(c, string(filepath.Separator)+".."+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return filepath.ToSlash(c), nil
}

// Resolve joins a slash-separated path relative to root and verifies that the
// result stays inside root.
func Resolve(root, rel string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	target := filepath.Join(rootAbs, filepath.FromSlash(rel))
	r, err := filepath.Rel(rootAbs, target)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", rel, siteerrors.ErrPathEscape)
	}
	return target, nil
}

// ReadFileContained reads rel only if it resolves inside root.
func ReadFileContained(root, rel string) ([]byte, error) {
	p, err := Resolve(root, rel)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- p has been verified to be contained within root
	return os.ReadFile(p)
}

// RemoveContained deletes the regular file rel under root. Directories are refused.
func RemoveContained(root, rel string) error {
	p, err := Resolve(root, rel)
	if err != nil {
		return err
	}
	st, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", rel)
	}
	return os.Remove(p)
}

// WriteFileAtomic writes data to a sibling temp file and renames it over path,
// so readers never observe a partially written document.
func WriteFileAtomic(path string, data []byte) error {
	var mode os.FileMode = 0o644
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode() & 0o777
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
