package jsonfile

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gunnforge/internal/domain"
	"gunnforge/internal/repository"
)

type usersDocument struct {
	Users []domain.User `json:"users"`
}

// UserStore is the credential store backed by users.json.
type UserStore struct {
	path string

	mu     sync.RWMutex
	loaded bool
	users  []domain.User
}

func NewUserStore(path string) *UserStore {
	return &UserStore{path: path}
}

var _ repository.UserRepository = (*UserStore)(nil)

func (s *UserStore) Path() string {
	return s.path
}

// Init creates an empty users document when none exists.
func (s *UserStore) Init(ctx context.Context) error {
	return ensureDocument(s.path, usersDocument{Users: []domain.User{}}, 0o600)
}

// Reload re-reads the document. On failure the previous cache is kept.
func (s *UserStore) Reload(ctx context.Context) error {
	users, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.users = users
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	users, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return append([]domain.User(nil), users...), nil
}

// Create appends user with the next numeric id and persists the document.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// writes always start from disk so a stale cache cannot drop records
	users, err := s.read()
	if err != nil {
		return err
	}

	var maxID int64
	for _, u := range users {
		if u.Username == user.Username {
			return fmt.Errorf("user %q: %w", user.Username, repository.ErrAlreadyExists)
		}
		if id, err := strconv.ParseInt(u.ID, 10, 64); err == nil && id > maxID {
			maxID = id
		}
	}

	created := *user
	created.ID = strconv.FormatInt(maxID+1, 10)
	next := append(users, created)
	if err := writeDocument(s.path, usersDocument{Users: next}, 0o600); err != nil {
		return err
	}

	s.users = next
	s.loaded = true
	user.ID = created.ID
	return nil
}

func (s *UserStore) DeleteByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.read()
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range users {
		if users[i].Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, repository.ErrNotFound
	}

	removed := users[idx]
	next := append(append([]domain.User{}, users[:idx]...), users[idx+1:]...)
	if err := writeDocument(s.path, usersDocument{Users: next}, 0o600); err != nil {
		return nil, err
	}

	s.users = next
	s.loaded = true
	return &removed, nil
}

func (s *UserStore) snapshot() ([]domain.User, error) {
	s.mu.RLock()
	if s.loaded {
		users := s.users
		s.mu.RUnlock()
		return users, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		users, err := s.read()
		if err != nil {
			return nil, err
		}
		s.users = users
		s.loaded = true
	}
	return s.users, nil
}

func (s *UserStore) read() ([]domain.User, error) {
	var doc usersDocument
	if err := readDocument(s.path, &doc); err != nil {
		return nil, err
	}
	return doc.Users, nil
}
