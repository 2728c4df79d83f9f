package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound means no object exists at the resolved location.
	ErrNotFound = errors.New("object not found")
	// ErrOutsideRoot means the resolved location escapes the storage root.
	ErrOutsideRoot = errors.New("path escapes storage root")
	// ErrNotRegularFile means the location exists but is not a plain file.
	ErrNotRegularFile = errors.New("not a regular file")
)

// ObjectInfo describes a stored member file.
type ObjectInfo struct {
	Key          string
	Size         int64 // -1 when the backend does not report a length
	LastModified *time.Time
}

// Object is an open member file. Callers must close Body.
type Object struct {
	ObjectInfo
	Body io.ReadCloser
}

// Service reads member files addressed by category and filename.
// Implementations enforce containment; callers validate names first.
type Service interface {
	Stat(ctx context.Context, category, filename string) (ObjectInfo, error)
	Open(ctx context.Context, category, filename string) (*Object, error)
}
