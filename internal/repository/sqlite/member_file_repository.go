package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gunnforge/internal/domain"
	"gunnforge/internal/repository"
)

const createMemberFilesTable = `
CREATE TABLE IF NOT EXISTS member_files (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	filename TEXT NOT NULL,
	upload_date TEXT NOT NULL DEFAULT '',
	size TEXT NOT NULL DEFAULT '',
	UNIQUE(category, filename)
);
`

type MemberFileRepository struct {
	db *sql.DB
}

func NewMemberFileRepository(db *sql.DB) repository.MemberFileRepository {
	return &MemberFileRepository{db: db}
}

func (r *MemberFileRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createMemberFilesTable); err != nil {
		return fmt.Errorf("create member_files table: %w", err)
	}
	return nil
}

// Reload is a no-op: every read goes to the database.
func (r *MemberFileRepository) Reload(ctx context.Context) error {
	return nil
}

// ReplaceAll swaps the whole manifest inside one transaction.
func (r *MemberFileRepository) ReplaceAll(ctx context.Context, files []domain.MemberFile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM member_files`); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}

	for _, file := range files {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO member_files (id, name, description, category, filename, upload_date, size)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			file.ID,
			file.Name,
			file.Description,
			file.Category,
			file.Filename,
			file.UploadDate,
			file.Size,
		); err != nil {
			return fmt.Errorf("insert file %s/%s: %w", file.Category, file.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *MemberFileRepository) List(ctx context.Context) ([]domain.MemberFile, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, description, category, filename, upload_date, size
FROM member_files
ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query member files: %w", err)
	}
	defer rows.Close()

	files := []domain.MemberFile{}
	for rows.Next() {
		file, err := scanMemberFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}

	return files, rows.Err()
}

func (r *MemberFileRepository) Find(ctx context.Context, category, filename string) (*domain.MemberFile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, description, category, filename, upload_date, size
FROM member_files
WHERE category = ? AND filename = ?`,
		category,
		filename,
	)
	return scanMemberFile(row)
}

func scanMemberFile(row interface {
	Scan(dest ...any) error
}) (*domain.MemberFile, error) {
	var file domain.MemberFile
	if err := row.Scan(
		&file.ID,
		&file.Name,
		&file.Description,
		&file.Category,
		&file.Filename,
		&file.UploadDate,
		&file.Size,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan member file: %w", err)
	}
	return &file, nil
}
