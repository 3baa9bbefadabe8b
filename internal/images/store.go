// Package images fetches page scans by reference from the local filesystem or
// a GCS bucket. A reference is the scan's path relative to the scan root,
// with forward slashes.
package images

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound matches every NotFoundError via errors.Is
	ErrNotFound = errors.New("image not found")
	// ErrInvalidRef is returned for references that are empty or leave the store root
	ErrInvalidRef = errors.New("invalid image reference")
)

// NotFoundError reports a reference with no image behind it
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image not found: %s", e.Ref)
}

// Is lets errors.Is(err, ErrNotFound) succeed
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Store fetches image bytes by reference
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// cleanRef validates a reference and returns it in canonical slash form.
// References must stay inside the store root.
func cleanRef(ref string) (string, error) {
	ref = strings.ReplaceAll(ref, "\\", "/")
	if ref == "" || strings.HasPrefix(ref, "/") {
		return "", fmt.Errorf("%w %q", ErrInvalidRef, ref)
	}
	clean := path.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w %q", ErrInvalidRef, ref)
	}
	return clean, nil
}

// LocalStore reads scans from a directory
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Fetch reads root/ref
func (s *LocalStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, fmt.Errorf("read image %s: %w", ref, err)
	}
	return data, nil
}
