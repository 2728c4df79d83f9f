package jsonfile

import (
	"context"
	"sync"

	"gunnforge/internal/domain"
	"gunnforge/internal/repository"
)

type manifestDocument struct {
	Files []domain.MemberFile `json:"files"`
}

// ManifestStore is the member file manifest backed by member-files.json.
type ManifestStore struct {
	path string

	mu     sync.RWMutex
	loaded bool
	files  []domain.MemberFile
}

func NewManifestStore(path string) *ManifestStore {
	return &ManifestStore{path: path}
}

var _ repository.MemberFileRepository = (*ManifestStore)(nil)

func (s *ManifestStore) Path() string {
	return s.path
}

func (s *ManifestStore) Init(ctx context.Context) error {
	return ensureDocument(s.path, manifestDocument{Files: []domain.MemberFile{}}, 0o644)
}

func (s *ManifestStore) Reload(ctx context.Context) error {
	files, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.files = files
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *ManifestStore) List(ctx context.Context) ([]domain.MemberFile, error) {
	files, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return append([]domain.MemberFile{}, files...), nil
}

func (s *ManifestStore) Find(ctx context.Context, category, filename string) (*domain.MemberFile, error) {
	files, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Category == category && f.Filename == filename {
			file := f
			return &file, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ManifestStore) ReplaceAll(ctx context.Context, files []domain.MemberFile) error {
	next := append([]domain.MemberFile{}, files...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeDocument(s.path, manifestDocument{Files: next}, 0o644); err != nil {
		return err
	}
	s.files = next
	s.loaded = true
	return nil
}

func (s *ManifestStore) snapshot() ([]domain.MemberFile, error) {
	s.mu.RLock()
	if s.loaded {
		files := s.files
		s.mu.RUnlock()
		return files, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		files, err := s.read()
		if err != nil {
			return nil, err
		}
		s.files = files
		s.loaded = true
	}
	return s.files, nil
}

func (s *ManifestStore) read() ([]domain.MemberFile, error) {
	var doc manifestDocument
	if err := readDocument(s.path, &doc); err != nil {
		return nil, err
	}
	if doc.Files == nil {
		doc.Files = []domain.MemberFile{}
	}
	return doc.Files, nil
}
