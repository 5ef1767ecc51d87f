package stubserver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legalai/legalai/client/model"
)

// ErrUserExists is returned when signup hits an already-registered email
var ErrUserExists = errors.New("user already exists")

type userRecord struct {
	user     model.User
	password string
	google   bool
}

// Store holds the stub backend's users and generated artifacts in memory
type Store struct {
	mu        sync.RWMutex
	users     map[string]*userRecord // keyed by email
	artifacts map[string][]byte      // keyed by email + "/" + filename
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]*userRecord),
		artifacts: make(map[string][]byte),
	}
}

// CreateUser registers a new account; the email must be unused
func (s *Store) CreateUser(name, email, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	if _, exists := s.users[email]; exists {
		return nil, ErrUserExists
	}

	now := time.Now().UTC()
	record := &userRecord{
		user: model.User{
			ID:        uuid.New().String(),
			Name:      name,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		password: password,
	}
	s.users[email] = record

	user := record.user
	return &user, nil
}

// Authenticate checks email and password, returning the profile on success
func (s *Store) Authenticate(email, password string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.users[strings.ToLower(email)]
	// plaintext comparison; the stub never holds real accounts
	if !ok || record.google || record.password != password {
		return nil, false
	}

	user := record.user
	return &user, true
}

// GetUser returns the profile registered under email
func (s *Store) GetUser(email string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, false
	}

	user := record.user
	return &user, true
}

// EnsureGoogleUser returns the account for a federated login, creating it
// on first sight
func (s *Store) EnsureGoogleUser(email, name string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	if record, ok := s.users[email]; ok {
		user := record.user
		return &user
	}

	now := time.Now().UTC()
	record := &userRecord{
		user: model.User{
			ID:        uuid.New().String(),
			Name:      name,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		google: true,
	}
	s.users[email] = record

	user := record.user
	return &user
}

// SaveArtifact stores a generated artifact under the owning user
func (s *Store) SaveArtifact(email, filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifactKey(email, filename)] = data
}

// Artifact returns a stored artifact
func (s *Store) Artifact(email, filename string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.artifacts[artifactKey(email, filename)]
	return data, ok
}

func artifactKey(email, filename string) string {
	return strings.ToLower(email) + "/" + filename
}
