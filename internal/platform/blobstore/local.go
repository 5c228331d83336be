package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// LocalBlobStore keeps objects as plain files in one directory.
type LocalBlobStore struct {
	root    string
	maxSize int64
	logger  zerolog.Logger
}

func NewLocalBlobStore(root string, maxSize int64, logger zerolog.Logger) (*LocalBlobStore, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &LocalBlobStore{root: root, maxSize: maxSize, logger: logger}, nil
}

func (s *LocalBlobStore) Root() string { return s.root }

// Put writes content to a temp file and renames it into place, so readers
// never see a partial object. An existing object with the same name is
// replaced.
func (s *LocalBlobStore) Put(ctx context.Context, name, contentType string, content io.Reader) (*BlobMetadata, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readLimited(content, s.maxSize)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.root, name)); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("store %s: %w", name, err)
	}

	meta := newMetadata(name, contentType, data)
	s.logger.Debug().Str("name", name).Int64("size", meta.Size).Msg("blob stored")
	return &meta, nil
}

func (s *LocalBlobStore) Open(_ context.Context, name string) (io.ReadCloser, *BlobMetadata, error) {
	if err := validateName(name); err != nil {
		return nil, nil, ErrBlobNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}
	meta := newMetadata(name, "", data)
	return io.NopCloser(bytes.NewReader(data)), &meta, nil
}

func (s *LocalBlobStore) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return ErrBlobNotFound
	}
	err := os.Remove(filepath.Join(s.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}
