// Package gateway decides whether a member may download a registered file
// and opens it for streaming.
//
// Every request runs the same short-circuiting pipeline: identity, parameter
// presence, category allow-list, filename safety, manifest membership,
// storage containment, and finally object existence and type. A filename is
// never rewritten to make it safe; anything suspicious is rejected.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gunnforge/internal/domain"
	"gunnforge/internal/repository"
	"gunnforge/internal/storage"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("not found")
)

// Error is a rejected download. Kind is one of the sentinel errors above and
// Reason is safe to show to the client.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	return e.Kind.Error() + ": " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func reject(kind error, reason string) error {
	return &Error{Kind: kind, Reason: reason}
}

const defaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".zip":  "application/zip",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// ContentType maps filename's extension to a MIME type.
func ContentType(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return defaultContentType
}

// FileStream is an authorised download. Body must be closed by the caller.
type FileStream struct {
	File        domain.MemberFile
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

type Gateway struct {
	files   repository.MemberFileRepository
	storage storage.Service
}

func New(files repository.MemberFileRepository, store storage.Service) *Gateway {
	return &Gateway{
		files:   files,
		storage: store,
	}
}

// Download runs the validation pipeline and opens the file on success.
func (g *Gateway) Download(ctx context.Context, identity *domain.UserPayload, category, filename string) (*FileStream, error) {
	if identity == nil {
		return nil, reject(ErrUnauthenticated, "Authentication required")
	}
	if category == "" || filename == "" {
		return nil, reject(ErrBadRequest, "Missing category or filename parameter")
	}
	if !domain.IsCategory(category) {
		return nil, reject(ErrBadRequest, "Invalid category")
	}
	if !SafeFilename(filename) {
		return nil, reject(ErrBadRequest, "Invalid filename")
	}

	record, err := g.files.Find(ctx, category, filename)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ErrNotFound, "File not found in metadata")
		}
		return nil, fmt.Errorf("load file metadata: %w", err)
	}

	obj, err := g.storage.Open(ctx, category, filename)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrOutsideRoot):
			return nil, reject(ErrBadRequest, "Invalid file path")
		case errors.Is(err, storage.ErrNotRegularFile):
			return nil, reject(ErrBadRequest, "Not a file")
		case errors.Is(err, storage.ErrNotFound):
			return nil, reject(ErrNotFound, "File not found on disk")
		}
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &FileStream{
		File:        *record,
		Filename:    filename,
		ContentType: ContentType(filename),
		Size:        obj.Size,
		Body:        obj.Body,
	}, nil
}

// SafeFilename reports whether name may be looked up at all. Unsafe names
// are rejected, never cleaned.
func SafeFilename(name string) bool {
	return domain.IsSafeFilename(name)
}
