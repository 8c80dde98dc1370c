// Package storage provides the durable stores for content-video bindings.
// A JSON-file backed Storage serves single-node deployments; a Postgres
// repository covers everything else.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"clipbind/internal/models"
)

type dataset struct {
	Bindings map[string]models.ContentVideoBinding `json:"bindings"`
}

// Storage is a JSON-file backed Repository. Every mutation is persisted by
// atomically replacing the backing file.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Bindings: make(map[string]models.ContentVideoBinding),
	}
}

// NewStorage opens (or creates) the JSON store at path.
func NewStorage(path string) (*Storage, error) {
	store := &Storage{filePath: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	if s.data.Bindings == nil {
		s.data.Bindings = make(map[string]models.ContentVideoBinding)
	}
	return nil
}

func (s *Storage) persist() error {
	if s.persistOverride != nil {
		return s.persistOverride(s.data)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func bindingKey(contentID int64) string {
	return strconv.FormatInt(contentID, 10)
}

// Ping reports whether the backing file's directory is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(filepath.Dir(s.filePath))
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func (s *Storage) InsertBindingIfAbsent(ctx context.Context, binding models.ContentVideoBinding) (models.ContentVideoBinding, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.ContentVideoBinding{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey(binding.ContentID)
	if existing, ok := s.data.Bindings[key]; ok {
		return existing, false, nil
	}

	now := time.Now().UTC()
	binding.CreatedAt = now
	binding.UpdatedAt = now
	s.data.Bindings[key] = binding
	if err := s.persist(); err != nil {
		delete(s.data.Bindings, key)
		return models.ContentVideoBinding{}, false, err
	}
	return binding, true, nil
}

func (s *Storage) GetBinding(ctx context.Context, contentID int64) (models.ContentVideoBinding, error) {
	if err := ctx.Err(); err != nil {
		return models.ContentVideoBinding{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, ok := s.data.Bindings[bindingKey(contentID)]
	if !ok {
		return models.ContentVideoBinding{}, ErrBindingNotFound
	}
	return binding, nil
}

func (s *Storage) ReplaceBinding(ctx context.Context, binding models.ContentVideoBinding) (models.ContentVideoBinding, error) {
	if err := ctx.Err(); err != nil {
		return models.ContentVideoBinding{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey(binding.ContentID)
	now := time.Now().UTC()
	previous, existed := s.data.Bindings[key]
	if existed {
		binding.CreatedAt = previous.CreatedAt
	} else {
		binding.CreatedAt = now
	}
	binding.UpdatedAt = now
	s.data.Bindings[key] = binding
	if err := s.persist(); err != nil {
		if existed {
			s.data.Bindings[key] = previous
		} else {
			delete(s.data.Bindings, key)
		}
		return models.ContentVideoBinding{}, err
	}
	return binding, nil
}

func (s *Storage) DeleteBinding(ctx context.Context, contentID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey(contentID)
	previous, ok := s.data.Bindings[key]
	if !ok {
		return ErrBindingNotFound
	}
	delete(s.data.Bindings, key)
	if err := s.persist(); err != nil {
		s.data.Bindings[key] = previous
		return err
	}
	return nil
}

func (s *Storage) ListBindings(ctx context.Context) ([]models.ContentVideoBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	bindings := make([]models.ContentVideoBinding, 0, len(s.data.Bindings))
	for _, binding := range s.data.Bindings {
		bindings = append(bindings, binding)
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].ContentID < bindings[j].ContentID
	})
	return bindings, nil
}

// Close is a no-op for the file-backed store.
func (s *Storage) Close(ctx context.Context) error {
	return nil
}
