package segments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
)

// DefaultExtension is used when an upload carries no usable file extension
const DefaultExtension = ".webm"

// SaveRequest describes one uploaded segment. Any field may be empty; the
// store applies defaults and sanitization.
type SaveRequest struct {
	Project       string
	Tool          string
	Date          string
	Discriminator string
	Extension     string
	Data          io.Reader
}

// StoredSegment is the result of a successful SaveSegment
type StoredSegment struct {
	Bucket   Bucket
	Filename string
	Path     string
	Size     int64
}

// Store persists segments in a <root>/<project>/<tool>/<date> tree.
//
// Callers must pick discriminators whose lexicographic order equals capture
// order: merges concatenate segments sorted by file name and never consult
// timestamps inside the media. Numeric discriminators are zero-padded for
// this reason and their leading zeros are not significant: "1", "01" and
// "001" address the same segment. See NormalizeDiscriminator.
type Store interface {
	// Root returns the absolute storage root
	Root() string
	// BucketDir returns the absolute directory of bucket
	BucketDir(b Bucket) string
	// EnsureBucketDir creates the bucket directory if absent
	EnsureBucketDir(b Bucket) (string, error)
	// SaveSegment sanitizes the request and writes the segment atomically
	SaveSegment(ctx context.Context, req SaveRequest) (*StoredSegment, error)
	// ListSegments returns the absolute segment paths of bucket in merge order
	ListSegments(b Bucket) ([]string, error)
}

// StoreOptions tunes naming and recognition rules of a FileStore
type StoreOptions struct {
	// RecognizedExtensions lists segment extensions (with dot) picked up by ListSegments
	RecognizedExtensions []string
	// DiscriminatorWidth is the zero-padding width for numeric discriminators
	DiscriminatorWidth int
}

// DefaultStoreOptions mirrors the defaults of the server configuration
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		RecognizedExtensions: []string{".webm", ".mp4", ".mkv"},
		DiscriminatorWidth:   13,
	}
}

// FileStore implements Store on the local filesystem
type FileStore struct {
	logger     logging.Logger
	root       string
	extensions map[string]struct{}
	width      int
	now        func() time.Time
}

// NewFileStore creates a store rooted at root. The root is resolved to an
// absolute path and created if missing.
func NewFileStore(logger logging.Logger, root string, opts StoreOptions) (*FileStore, error) {
	if logger == nil {
		logger = logging.NopLogger
	}
	if root == "" {
		return nil, errors.New("storage root cannot be empty")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, NewStorageFailure("create root", absRoot, err)
	}

	exts := make(map[string]struct{}, len(opts.RecognizedExtensions))
	for _, ext := range opts.RecognizedExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &FileStore{
		logger:     logger,
		root:       absRoot,
		extensions: exts,
		width:      opts.DiscriminatorWidth,
		now:        time.Now,
	}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) BucketDir(b Bucket) string {
	return filepath.Join(s.root, b.RelPath())
}

func (s *FileStore) EnsureBucketDir(b Bucket) (string, error) {
	if !b.IsComplete() {
		return "", NewStorageFailure("create bucket", b.String(), errors.New("incomplete bucket"))
	}

	dir := s.BucketDir(b)
	if !s.contains(dir) {
		return "", NewStorageFailure("create bucket", dir, errors.New("path escapes storage root"))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewStorageFailure("create bucket", dir, err)
	}
	return dir, nil
}

func (s *FileStore) SaveSegment(ctx context.Context, req SaveRequest) (*StoredSegment, error) {
	if req.Data == nil {
		return nil, errors.New("segment data cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	bucket := NewBucket(req.Project, req.Tool, req.Date, now)
	disc, err := NormalizeDiscriminator(req.Discriminator, s.width, now)
	if err != nil {
		return nil, err
	}
	ext := NormalizeExtension(req.Extension, DefaultExtension)
	filename := bucket.Tool + "_" + disc + ext

	if IsReservedName(filename) {
		return nil, NewReservedNameError(filename)
	}

	dir, err := s.EnsureBucketDir(bucket)
	if err != nil {
		s.logger.Error("Failed to create bucket directory", "bucket", bucket.String(), "error", err)
		return nil, s.retainPayload(err, req.Data, ext)
	}

	target := filepath.Join(dir, filename)
	size, err := writeFileAtomic(dir, target, req.Data)
	if err != nil {
		s.logger.Error("Failed to store segment", "path", target, "retained", RetainedPayload(err), "error", err)
		return nil, err
	}

	s.logger.Info("Stored segment", "bucket", bucket.String(), "filename", filename, "size", humanize.Bytes(uint64(size)))

	return &StoredSegment{
		Bucket:   bucket,
		Filename: filename,
		Path:     target,
		Size:     size,
	}, nil
}

func (s *FileStore) ListSegments(b Bucket) ([]string, error) {
	dir := s.BucketDir(b)
	if !b.IsComplete() || !s.contains(dir) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewStorageFailure("read bucket", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if IsReservedName(name) {
			continue
		}
		if _, ok := s.extensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}

	sort.Strings(paths)
	return paths, nil
}

// retainPayload keeps the unread rest of data under <root>/.failed so a
// failed upload can be inspected, and records its path on cause.
func (s *FileStore) retainPayload(cause error, data io.Reader, ext string) error {
	var failure *StorageFailure
	if !errors.As(cause, &failure) {
		return cause
	}

	dir := filepath.Join(s.root, FailedDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Warn("Failed to create directory for failed uploads", "path", dir, "error", err)
		return cause
	}

	target := filepath.Join(dir, uuid.New().String()+ext)
	size, err := writeFileAtomic(dir, target, data)
	if err != nil {
		s.logger.Warn("Failed to retain upload payload", "path", target, "error", err)
		return cause
	}

	failure.Retained = target
	s.logger.Warn("Retained payload of failed upload", "path", target, "size", humanize.Bytes(uint64(size)))
	return failure
}

// contains reports whether path lies inside the storage root
func (s *FileStore) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// writeFileAtomic streams r into a hidden temp file inside dir and renames it
// to target once the data is synced. A failed write removes the temp file, a
// failed rename keeps it.
func writeFileAtomic(dir, target string, r io.Reader) (int64, error) {
	tmpPath := filepath.Join(dir, ".upload-"+uuid.New().String()+".tmp")

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, NewStorageFailure("create temp file", tmpPath, err)
	}

	size, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, NewStorageFailure("write segment", tmpPath, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		// the complete payload stays behind in the temp file
		return 0, &StorageFailure{Op: "rename segment", Path: target, Err: err, Retained: tmpPath}
	}

	return size, nil
}
