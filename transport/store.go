package transport

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore is the single durable slot holding the bearer token. An empty
// string means unauthenticated. All reads and writes of the credential go
// through this interface; no other component touches the stored token.
type TokenStore interface {
	// Token returns the stored token, or "" if none is present
	Token() (string, error)
	// Persist unconditionally overwrites any existing token
	Persist(token string) error
	// Clear erases the token; clearing an empty store is a no-op
	Clear() error
}

// FileTokenStore persists the token as a plain string in a single file,
// mirroring the browser client's named localStorage slot.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Token() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileTokenStore) Persist(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token), 0600)
}

func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemoryTokenStore is an in-memory TokenStore for tests and ephemeral sessions
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Persist(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
