package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalService serves member files from <root>/<category>/<filename>.
type LocalService struct {
	root string
}

func NewLocalService(root string) (*LocalService, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &LocalService{root: abs}, nil
}

var _ Service = (*LocalService)(nil)

func (s *LocalService) Root() string {
	return s.root
}

func (s *LocalService) Stat(ctx context.Context, category, filename string) (ObjectInfo, error) {
	path, info, err := s.resolve(category, filename)
	if err != nil {
		return ObjectInfo{}, err
	}
	return fileInfo(path, info), nil
}

func (s *LocalService) Open(ctx context.Context, category, filename string) (*Object, error) {
	path, _, err := s.resolve(category, filename)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// stat the handle so size matches what will be streamed
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotRegularFile
	}

	return &Object{ObjectInfo: fileInfo(path, info), Body: f}, nil
}

// resolve joins the candidate path, evaluates symlinks on both it and the
// root, and requires the canonical candidate to stay under the canonical root.
func (s *LocalService) resolve(category, filename string) (string, fs.FileInfo, error) {
	candidate := filepath.Join(s.root, category, filename)
	if !within(s.root, candidate) {
		return "", nil, ErrOutsideRoot
	}

	root, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("resolve storage root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("resolve %s: %w", candidate, err)
	}
	if !within(root, resolved) {
		return "", nil, ErrOutsideRoot
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, ErrNotRegularFile
	}
	return resolved, info, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

func fileInfo(path string, info fs.FileInfo) ObjectInfo {
	modTime := info.ModTime()
	return ObjectInfo{
		Key:          path,
		Size:         info.Size(),
		LastModified: &modTime,
	}
}
