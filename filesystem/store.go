// Package filesystem provides the file system a sluice server delivers from.
// All access goes through an os.Root, so a pathname can never reach
// outside the served directory, whatever it contains.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sagarc03/sluice"
)

// Store provides read-only access to a served directory.
type Store struct {
	root *os.Root
}

var _ sluice.FileSystem = (*Store)(nil)

// NewFileStorage creates a new Store with the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root) *Store {
	return &Store{root: root}
}

// Open opens the slash-rooted pathname for reading.
func (s *Store) Open(name string) (sluice.File, error) {
	f, err := s.root.Open(rootRelative(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Stat returns file info for the slash-rooted pathname. Missing entries and
// entries outside the root both wrap fs.ErrNotExist.
func (s *Store) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.root.Stat(rootRelative(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || isEscape(err) {
			return nil, fmt.Errorf("stat %s: %w", name, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return info, nil
}

func rootRelative(name string) string {
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "."
	}
	return name
}

// isEscape reports whether err is os.Root refusing a path that leaves it.
func isEscape(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) && pathErr.Err != nil &&
		strings.Contains(pathErr.Err.Error(), "escapes from parent")
}
