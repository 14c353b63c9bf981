// Package tokenstore persists the bearer token between runs of the client.
package tokenstore

import (
	"fmt"
	"strings"
	"sync"
)

// Storage is durable storage for a single bearer token. Load returns "" when
// nothing usable is stored.
type Storage interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Normalize maps placeholder values left behind by careless writers
// ("undefined", "null", blanks) to the empty string.
func Normalize(token string) string {
	t := strings.TrimSpace(token)
	switch t {
	case "", "undefined", "null":
		return ""
	}
	return t
}

// Open returns the storage backend named by kind.
func Open(kind, path string) (Storage, error) {
	switch kind {
	case "", "file":
		return NewFileStorage(path), nil
	case "sqlite":
		return NewSQLiteStorage(path)
	case "memory":
		return &MemoryStorage{}, nil
	default:
		return nil, fmt.Errorf("unknown token store %q", kind)
	}
}

type MemoryStorage struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryStorage) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Normalize(m.token), nil
}

func (m *MemoryStorage) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
