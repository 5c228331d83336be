// Package blobstore stores named files outside the database: questionnaire
// image uploads, archived submission summaries and patient list exports.
// Objects are addressed by a flat name; callers derive names from their own
// identifiers and the store refuses anything that could escape its root.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrInvalidName  = errors.New("invalid blob name")
)

// DefaultMaxSize caps a single object (20 MB).
const DefaultMaxSize = 20 * 1024 * 1024

type BlobMetadata struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

type BlobStore interface {
	Put(ctx context.Context, name, contentType string, content io.Reader) (*BlobMetadata, error)
	Open(ctx context.Context, name string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, name string) error
}

// SanitizeFileName reduces an uploaded file name to a safe flat name: the
// base name only, with anything other than letters, digits, '.', '-' and
// '_' replaced by '_'. Leading dots are removed. An empty result becomes
// "file".
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}

func validateName(name string) error {
	if name == "" || name != SanitizeFileName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func contentTypeFor(name, given string) string {
	if given != "" {
		return given
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func readLimited(content io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func newMetadata(name, contentType string, data []byte) BlobMetadata {
	return BlobMetadata{
		Name:        name,
		ContentType: contentTypeFor(name, contentType),
		Size:        int64(len(data)),
		Hash:        fmt.Sprintf("%x", sha256.Sum256(data)),
		CreatedAt:   time.Now().UTC(),
	}
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for tests.
type InMemoryBlobStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs:   make(map[string]*storedBlob),
		maxSize: DefaultMaxSize,
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, name, contentType string, content io.Reader) (*BlobMetadata, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := readLimited(content, s.maxSize)
	if err != nil {
		return nil, err
	}

	meta := newMetadata(name, contentType, data)
	s.mu.Lock()
	s.blobs[name] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Open(_ context.Context, name string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, name)
	return nil
}

// Names lists stored names; tests use it to assert what was written.
func (s *InMemoryBlobStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.blobs))
	for n := range s.blobs {
		names = append(names, n)
	}
	return names
}
