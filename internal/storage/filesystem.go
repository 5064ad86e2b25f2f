package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	directoryPermissions = 0o755
	filePermissions      = 0o644
	temporaryFilePattern = ".listsync-*"

	errMessageCreateDirectory = "create object directory"
	errMessageReadFile        = "read object file"
	errMessageWriteFile       = "write object file"
)

// FileStore keeps objects as files under Directory/bucket/key. Content types are not persisted.
type FileStore struct {
	Directory string
}

// NewFileStore returns a FileStore rooted at directory.
func NewFileStore(directory string) *FileStore {
	return &FileStore{Directory: directory}
}

// ReadObject returns the content of bucket/key.
func (store *FileStore) ReadObject(ctx context.Context, bucket string, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateLocation(bucket, key); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(store.objectPath(bucket, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s %s/%s: %w", errMessageReadFile, bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("%s %s/%s: %w", errMessageReadFile, bucket, key, err)
	}
	return content, nil
}

// WriteObject replaces bucket/key with content. Readers never observe a partially written file.
func (store *FileStore) WriteObject(ctx context.Context, bucket string, key string, _ string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateLocation(bucket, key); err != nil {
		return err
	}
	objectPath := store.objectPath(bucket, key)
	objectDirectory := filepath.Dir(objectPath)
	if err := os.MkdirAll(objectDirectory, directoryPermissions); err != nil {
		return fmt.Errorf("%s: %w", errMessageCreateDirectory, err)
	}

	temporaryFile, err := os.CreateTemp(objectDirectory, temporaryFilePattern)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteFile, err)
	}
	temporaryPath := temporaryFile.Name()
	if _, err := temporaryFile.Write(content); err != nil {
		_ = temporaryFile.Close()
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("%s: %w", errMessageWriteFile, err)
	}
	if err := temporaryFile.Close(); err != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("%s: %w", errMessageWriteFile, err)
	}
	if err := os.Chmod(temporaryPath, filePermissions); err != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("%s: %w", errMessageWriteFile, err)
	}
	if err := os.Rename(temporaryPath, objectPath); err != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("%s: %w", errMessageWriteFile, err)
	}
	return nil
}

func (store *FileStore) objectPath(bucket string, key string) string {
	return filepath.Join(store.Directory, bucket, filepath.FromSlash(key))
}

// Close is a no-op; FileStore holds no open resources.
func (store *FileStore) Close() error {
	return nil
}
