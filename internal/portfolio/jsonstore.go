package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps every project in a single JSON array file, newest first.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

// OpenJSONStore opens the store at path, creating the file (and its
// directory) with an empty array if it does not exist.
func OpenJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &JSONStore{path: path}, nil
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// List reads the file. An empty file is an empty list; malformed content is
// an error.
func (s *JSONStore) List(ctx context.Context) ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Add prepends p and rewrites the file. Unparsable existing content is
// discarded.
func (s *JSONStore) Add(ctx context.Context, p Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.readLocked()
	if err != nil {
		slog.Warn("projects file unreadable, starting fresh", "path", s.path, "error", err)
		projects = nil
	}
	projects = append([]Project{p}, projects...)

	data, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return fmt.Errorf("encode projects: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) readLocked() ([]Project, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []Project{}, nil
	}
	var projects []Project
	if err := json.Unmarshal(raw, &projects); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects, nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
