package s3store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore implements Store against the local filesystem, treating URIs as
// plain paths. Used by the CLI for local runs and by tests.
type FileStore struct{}

// NewFileStore creates a filesystem-backed store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// ReadBytes reads the file at path.
func (f *FileStore) ReadBytes(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", path, err)
	}
	return data, nil
}

// ReadText reads the file at path as a string.
func (f *FileStore) ReadText(ctx context.Context, path string) (string, error) {
	data, err := f.ReadBytes(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadJSON reads and unmarshals the file at path.
func (f *FileStore) ReadJSON(ctx context.Context, path string, out any) error {
	data, err := f.ReadBytes(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("filestore: decode %s: %w", path, err)
	}
	return nil
}

// WriteBytes writes data to path, creating parent directories as needed.
func (f *FileStore) WriteBytes(_ context.Context, path string, data []byte, _ string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", path, err)
	}
	return nil
}

// WriteJSON marshals value with indentation and writes it to path.
func (f *FileStore) WriteJSON(ctx context.Context, path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode %s: %w", path, err)
	}
	return f.WriteBytes(ctx, path, data, "application/json")
}
