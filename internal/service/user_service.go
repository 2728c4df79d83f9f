package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"gunnforge/internal/domain"
	"gunnforge/internal/repository"
)

const (
	// PasswordHashCost matches the cost used for existing records.
	PasswordHashCost = 10

	MinUsernameLength = 3
	MinPasswordLength = 8
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	// Unknown usernames and wrong passwords both produce it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserAlreadyExists is returned when attempting to add an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned when removing a username that is not registered.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUser wraps validation failures on new accounts.
	ErrInvalidUser = errors.New("invalid user")
)

// UserService describes user lifecycle operations.
type UserService interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Add(ctx context.Context, username, password string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Remove(ctx context.Context, username string) (*domain.User, error)
}

type userService struct {
	users repository.UserRepository

	dummyOnce sync.Once
	dummyHash []byte
}

func NewUserService(users repository.UserRepository) UserService {
	return &userService{users: users}
}

// Authenticate looks username up verbatim and checks password against its hash.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// burn one comparison so unknown names cost the same as known ones
			_ = bcrypt.CompareHashAndPassword(s.fallbackHash(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

func (s *userService) Add(ctx context.Context, username, password string) (*domain.User, error) {
	if len(username) < MinUsernameLength {
		return nil, fmt.Errorf("%w: username must be at least %d characters long", ErrInvalidUser, MinUsernameLength)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters long", ErrInvalidUser, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	return sanitizeUser(user), nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, len(users))
	for i := range users {
		out[i] = *sanitizeUser(&users[i])
	}
	return out, nil
}

func (s *userService) Remove(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.DeleteByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) fallbackHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("gunnforge-placeholder"), PasswordHashCost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:       user.ID,
		Username: user.Username,
	}
}
