// Package storage is the client-side persistence sink: prefix-keyed
// JSON blobs on a filesystem. Corrupt or unreadable entries are
// reported as absent so callers always fail open to a fresh state.
package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Store is the capability interface the core components persist through.
type Store interface {
	// Get returns the blob for key, or ok=false when the key is
	// missing or its contents are not valid JSON.
	Get(key string) (data []byte, ok bool)
	// Set writes the blob for key, stamping a saved_at field.
	Set(key string, data []byte) error
	Remove(key string) error
	// Clear removes every key under this store's prefix.
	Clear() error
}

// FileStore persists blobs as individual files under a directory.
type FileStore struct {
	fs     afero.Fs
	dir    string
	prefix string
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(fs afero.Fs, dir, prefix string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{fs: fs, dir: dir, prefix: prefix}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, s.prefix+key+".json")
}

func (s *FileStore) Get(key string) ([]byte, bool) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		return nil, false
	}
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	return data, true
}

func (s *FileStore) Set(key string, data []byte) error {
	if !json.Valid(data) {
		// Store raw values as a JSON string so Get round-trips.
		encoded, err := json.Marshal(string(data))
		if err != nil {
			return err
		}
		data = encoded
	}
	stamped, err := sjson.SetBytes(data, "saved_at", time.Now().UnixMilli())
	if err != nil {
		// Non-object blobs (arrays, scalars) cannot carry the stamp.
		stamped = data
	}
	return afero.WriteFile(s.fs, s.path(key), stamped, 0o644)
}

func (s *FileStore) Remove(key string) error {
	err := s.fs.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Clear() error {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), s.prefix) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// GetJSON decodes the blob for key into dest, reporting ok=false for
// missing, corrupt, or shape-mismatched entries.
func GetJSON(s Store, key string, dest any) bool {
	data, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false
	}
	return true
}

// SetJSON encodes value and writes it under key.
func SetJSON(s Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(key, data)
}
