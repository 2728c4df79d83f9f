package repository

import (
	"context"

	"gunnforge/internal/domain"
)

// MemberFileRepository exposes the manifest of downloadable files.
type MemberFileRepository interface {
	Init(ctx context.Context) error
	Reload(ctx context.Context) error
	List(ctx context.Context) ([]domain.MemberFile, error)
	Find(ctx context.Context, category, filename string) (*domain.MemberFile, error)
	ReplaceAll(ctx context.Context, files []domain.MemberFile) error
}
