package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"gunnforge/internal/domain"
)

// objectAPI is the part of the S3 client used for reads.
type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Service serves member files from s3://<bucket>/<prefix>/<category>/<filename>
// (or compatible APIs).
type S3Service struct {
	client   objectAPI
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Service(client *s3.Client, bucket, keyPrefix string) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(keyPrefix, "/"),
	}
}

var _ Service = (*S3Service)(nil)

func (s *S3Service) Stat(ctx context.Context, category, filename string) (ObjectInfo, error) {
	key, err := s.objectKey(category, filename)
	if err != nil {
		return ObjectInfo{}, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, s3Error("head object", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         objectSize(out.ContentLength),
		LastModified: out.LastModified,
	}, nil
}

func (s *S3Service) Open(ctx context.Context, category, filename string) (*Object, error) {
	key, err := s.objectKey(category, filename)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s3Error("get object", key, err)
	}
	return &Object{
		ObjectInfo: ObjectInfo{
			Key:          key,
			Size:         objectSize(out.ContentLength),
			LastModified: out.LastModified,
		},
		Body: out.Body,
	}, nil
}

// objectKey builds the key and rejects any name that would be rewritten by cleaning.
func (s *S3Service) objectKey(category, filename string) (string, error) {
	key := category + "/" + filename
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	if path.Clean(key) != key || strings.ContainsAny(filename, "/\\\x00") {
		return "", ErrOutsideRoot
	}
	if s.prefix != "" && !strings.HasPrefix(key, s.prefix+"/") {
		return "", ErrOutsideRoot
	}
	return key, nil
}

// objectSize reports a missing Content-Length as -1 (unknown).
func objectSize(length *int64) int64 {
	if length == nil {
		return -1
	}
	return *length
}

func s3Error(op, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// SyncResult summarises a SyncDirectory run.
type SyncResult struct {
	Uploaded int
	// Skipped lists paths, relative to the local root, that the gateway could
	// never serve: files outside a category directory, nested deeper than
	// <category>/<filename>, hidden, or with an unsafe name.
	Skipped []string
}

// SyncDirectory uploads every servable file below localRoot, keeping its
// relative path under the key prefix.
func (s *S3Service) SyncDirectory(ctx context.Context, localRoot string, progressCallback func(done, total int64)) (SyncResult, error) {
	var result SyncResult
	if s.bucket == "" {
		return result, fmt.Errorf("storage bucket is required")
	}

	root := filepath.Clean(localRoot)
	if fi, err := os.Stat(root); err != nil {
		return result, fmt.Errorf("stat local path: %w", err)
	} else if !fi.IsDir() {
		return result, fmt.Errorf("local path must be a directory")
	}

	type uploadFile struct {
		path string
		rel  string
		size int64
	}

	var files []uploadFile
	err := filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		if !servable(rel) {
			result.Skipped = append(result.Skipped, rel)
			return nil
		}
		files = append(files, uploadFile{
			path: p,
			rel:  rel,
			size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return result, err
	}

	var totalSize int64
	for _, file := range files {
		totalSize += file.size
	}

	progress := newProgressReporter(totalSize, progressCallback)
	if progress != nil {
		progress.report(0)
	}

	for _, file := range files {
		key := file.rel
		if s.prefix != "" {
			key = s.prefix + "/" + file.rel
		}

		f, err := os.Open(file.path)
		if err != nil {
			return result, fmt.Errorf("open file %s: %w", file.path, err)
		}
		var reader io.Reader = f
		if progress != nil {
			reader = io.TeeReader(f, progress)
		}
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   reader,
			ACL:    types.ObjectCannedACLPrivate,
		})
		closeErr := f.Close()
		if err != nil {
			return result, fmt.Errorf("upload %s: %w", file.path, err)
		}
		if closeErr != nil {
			return result, fmt.Errorf("close file %s: %w", file.path, closeErr)
		}
		result.Uploaded++
	}

	if progress != nil {
		progress.flush()
	}

	return result, nil
}

// servable reports whether rel has the <category>/<filename> shape downloads use.
func servable(rel string) bool {
	category, filename, ok := strings.Cut(rel, "/")
	return ok &&
		domain.IsCategory(category) &&
		domain.IsSafeFilename(filename) &&
		!strings.HasPrefix(filename, ".")
}

type progressReporter struct {
	total    int64
	done     int64
	cb       func(done, total int64)
	mu       sync.Mutex
	lastFire time.Time
}

func newProgressReporter(total int64, cb func(done, total int64)) *progressReporter {
	if cb == nil {
		return nil
	}
	return &progressReporter{
		total: total,
		cb:    cb,
	}
}

func (p *progressReporter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += int64(len(b))
	now := time.Now()
	if now.Sub(p.lastFire) >= 200*time.Millisecond || p.done == p.total {
		p.lastFire = now
		p.cb(p.done, p.total)
	}

	return len(b), nil
}

func (p *progressReporter) report(done int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	p.lastFire = time.Now()
	p.cb(p.done, p.total)
}

func (p *progressReporter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb(p.done, p.total)
}
