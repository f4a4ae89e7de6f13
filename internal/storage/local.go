package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects on the local filesystem under a root directory.
// Used for development and tests.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// pathFor rejects keys that would escape the root directory.
func (s *LocalStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Upload(ctx context.Context, data []byte, key, contentType string) (ObjectInfo, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ObjectInfo{}, fmt.Errorf("writing object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:         key,
		Bucket:      "local",
		URL:         "file://" + path,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (s *LocalStore) Download(ctx context.Context, key string) ([]byte, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) (bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("deleting object %s: %w", key, err)
	}
	return true, nil
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	return keys, nil
}

func (s *LocalStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "local"}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		stats.ObjectCount++
		stats.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("collecting storage stats: %w", err)
	}
	return stats, nil
}

var _ BlobStore = (*LocalStore)(nil)
