package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legalai/legalai/client/config"
	"github.com/legalai/legalai/client/model"
	"github.com/legalai/legalai/client/stubserver"
	"github.com/legalai/legalai/client/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newStubBackend(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.StubConfig{
		JWTSecret:        "test-secret",
		TokenExpireHours: 1,
		Users: []config.StubUser{
			{Name: "Ada Lovelace", Email: "ada@example.com", Password: "analytical"},
		},
	}
	server := httptest.NewServer(stubserver.New(cfg).Router())
	t.Cleanup(server.Close)
	return server
}

func newManager(serverURL string) (*Manager, *transport.MemoryTokenStore) {
	store := transport.NewMemoryTokenStore()
	client := transport.NewClient(serverURL, store, 5*time.Second)
	return NewManager(client), store
}

func TestLoginSuccess(t *testing.T) {
	backend := newStubBackend(t)
	m, store := newManager(backend.URL)

	if m.State() != model.SessionAnonymous {
		t.Fatalf("Expected initial state anonymous, got %s", m.State())
	}

	if err := m.Login(context.Background(), "ada@example.com", "analytical"); err != nil {
		t.Fatalf("Unexpected login error: %v", err)
	}

	if m.State() != model.SessionAuthenticated {
		t.Errorf("Expected authenticated, got %s", m.State())
	}
	user := m.User()
	if user == nil || user.Email != "ada@example.com" || user.Name != "Ada Lovelace" {
		t.Errorf("Expected populated identity, got %+v", user)
	}
	if token, _ := store.Token(); token == "" {
		t.Error("Expected credential to be persisted")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	backend := newStubBackend(t)
	m, store := newManager(backend.URL)

	err := m.Login(context.Background(), "ada@example.com", "wrong")
	if !transport.IsKind(err, transport.KindInvalidCredentials) {
		t.Fatalf("Expected KindInvalidCredentials, got %v", err)
	}

	if m.State() != model.SessionError {
		t.Errorf("Expected error state, got %s", m.State())
	}
	if m.ErrorMessage() != "Incorrect email or password" {
		t.Errorf("Expected backend message retained, got %q", m.ErrorMessage())
	}
	if m.User() != nil {
		t.Error("Expected no identity after failed login")
	}
	if token, _ := store.Token(); token != "" {
		t.Error("Expected no persisted credential after failed login")
	}
}

func TestLoginWhoAmIFailureLeavesNoCredential(t *testing.T) {
	// token call succeeds, who-am-I answers 500
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(map[string]string{"access_token": "issued-token"})
		case "/api/auth/me":
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"detail": "backend exploded"})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	m, store := newManager(server.URL)

	err := m.Login(context.Background(), "a@b.com", "pw")
	if !transport.IsKind(err, transport.KindServer) {
		t.Fatalf("Expected KindServer, got %v", err)
	}

	if m.State() != model.SessionError {
		t.Errorf("Expected error state, got %s", m.State())
	}
	if m.User() != nil {
		t.Error("Expected no identity after half-completed login")
	}
	if token, _ := store.Token(); token != "" {
		t.Error("Expected no persisted credential when who-am-I fails")
	}
}

func TestWhoAmIUsesJustIssuedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			json.NewEncoder(w).Encode(map[string]string{"access_token": "issued-token"})
		case "/api/auth/me":
			if r.Header.Get("Authorization") != "Bearer issued-token" {
				t.Errorf("Expected just-issued token, got %q", r.Header.Get("Authorization"))
			}
			json.NewEncoder(w).Encode(model.User{ID: "1", Name: "A", Email: "a@b.com"})
		}
	}))
	defer server.Close()

	m, store := newManager(server.URL)
	store.Persist("stale-token")

	if err := m.Login(context.Background(), "a@b.com", "pw"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token, _ := store.Token(); token != "issued-token" {
		t.Errorf("Expected issued token persisted, got %q", token)
	}
}

func TestSignupChainsIntoLogin(t *testing.T) {
	backend := newStubBackend(t)
	m, store := newManager(backend.URL)

	if err := m.Signup(context.Background(), "Grace Hopper", "grace@example.com", "cobol1959"); err != nil {
		t.Fatalf("Unexpected signup error: %v", err)
	}

	if m.State() != model.SessionAuthenticated {
		t.Errorf("Expected authenticated after signup, got %s", m.State())
	}
	user := m.User()
	if user == nil || user.Name != "Grace Hopper" {
		t.Errorf("Expected created identity, got %+v", user)
	}
	if token, _ := store.Token(); token == "" {
		t.Error("Expected credential persisted after signup")
	}
}

func TestSignupAccountExists(t *testing.T) {
	backend := newStubBackend(t)
	m, _ := newManager(backend.URL)

	err := m.Signup(context.Background(), "Another Ada", "ada@example.com", "pw123456")
	if !transport.IsKind(err, transport.KindAccountExists) {
		t.Fatalf("Expected KindAccountExists, got %v", err)
	}
	if m.State() != model.SessionError {
		t.Errorf("Expected error state, got %s", m.State())
	}
}

func TestGoogleLogin(t *testing.T) {
	backend := newStubBackend(t)
	m, store := newManager(backend.URL)

	if err := m.GoogleLogin(context.Background(), "google:linus@example.com"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if m.State() != model.SessionAuthenticated {
		t.Errorf("Expected authenticated, got %s", m.State())
	}
	if user := m.User(); user == nil || user.Email != "linus@example.com" {
		t.Errorf("Expected federated identity, got %+v", user)
	}
	if token, _ := store.Token(); token == "" {
		t.Error("Expected credential persisted")
	}
}

func TestGoogleLoginRejectedToken(t *testing.T) {
	backend := newStubBackend(t)
	m, _ := newManager(backend.URL)

	err := m.GoogleLogin(context.Background(), "garbage")
	if !transport.IsKind(err, transport.KindInvalidCredentials) {
		t.Fatalf("Expected KindInvalidCredentials, got %v", err)
	}
	if m.State() != model.SessionError {
		t.Errorf("Expected error state, got %s", m.State())
	}
}

func TestLogout(t *testing.T) {
	backend := newStubBackend(t)
	m, store := newManager(backend.URL)

	if err := m.Login(context.Background(), "ada@example.com", "analytical"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m.Logout()

	if m.State() != model.SessionAnonymous {
		t.Errorf("Expected anonymous after logout, got %s", m.State())
	}
	if m.User() != nil {
		t.Error("Expected no identity after logout")
	}
	if token, _ := store.Token(); token != "" {
		t.Error("Expected no stored credential after logout")
	}
}

func TestLogoutDuringLoginDiscardsResult(t *testing.T) {
	loginStarted := make(chan struct{})
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			close(loginStarted)
			<-release
			json.NewEncoder(w).Encode(map[string]string{"access_token": "late-token"})
		case "/api/auth/me":
			json.NewEncoder(w).Encode(model.User{ID: "1", Name: "Late", Email: "late@b.com"})
		}
	}))
	defer server.Close()

	m, store := newManager(server.URL)

	done := make(chan error, 1)
	go func() {
		done <- m.Login(context.Background(), "late@b.com", "pw")
	}()

	<-loginStarted
	m.Logout()
	close(release)

	err := <-done
	if !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Expected ErrLoggedOut, got %v", err)
	}

	if m.State() != model.SessionAnonymous {
		t.Errorf("Expected anonymous, got %s", m.State())
	}
	if m.User() != nil {
		t.Error("Expected stale identity to be discarded")
	}
	if token, _ := store.Token(); token != "" {
		t.Error("Expected stale credential not to be persisted")
	}
}

func TestSecondLoginWhileInFlight(t *testing.T) {
	loginStarted := make(chan struct{})
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			close(loginStarted)
			<-release
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
		case "/api/auth/me":
			json.NewEncoder(w).Encode(model.User{ID: "1", Name: "A", Email: "a@b.com"})
		}
	}))
	defer server.Close()

	m, _ := newManager(server.URL)

	done := make(chan error, 1)
	go func() {
		done <- m.Login(context.Background(), "a@b.com", "pw")
	}()

	<-loginStarted
	if err := m.Login(context.Background(), "a@b.com", "pw"); !errors.Is(err, ErrAuthInFlight) {
		t.Errorf("Expected ErrAuthInFlight, got %v", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Unexpected error from first login: %v", err)
	}
	if m.State() != model.SessionAuthenticated {
		t.Errorf("Expected first login to win, got %s", m.State())
	}
}

func TestRestore(t *testing.T) {
	backend := newStubBackend(t)
	m, store := newManager(backend.URL)

	if err := m.Login(context.Background(), "ada@example.com", "analytical"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	token, _ := store.Token()

	// a fresh manager with the same persisted credential, as after restart
	store2 := transport.NewMemoryTokenStore()
	store2.Persist(token)
	client2 := transport.NewClient(backend.URL, store2, 5*time.Second)
	m2 := NewManager(client2)

	if err := m2.Restore(context.Background()); err != nil {
		t.Fatalf("Unexpected restore error: %v", err)
	}
	if m2.State() != model.SessionAuthenticated {
		t.Errorf("Expected authenticated after restore, got %s", m2.State())
	}
	if user := m2.User(); user == nil || user.Email != "ada@example.com" {
		t.Errorf("Expected restored identity, got %+v", user)
	}
}

func TestRestoreWithoutToken(t *testing.T) {
	backend := newStubBackend(t)
	m, _ := newManager(backend.URL)

	if err := m.Restore(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.State() != model.SessionAnonymous {
		t.Errorf("Expected anonymous, got %s", m.State())
	}
}

func TestRestoreRevokedToken(t *testing.T) {
	backend := newStubBackend(t)
	m, store := newManager(backend.URL)
	store.Persist("forged-token")

	forced := false
	m.OnForcedLogout(func() { forced = true })

	err := m.Restore(context.Background())
	if !transport.IsKind(err, transport.KindAuthorizationRevoked) {
		t.Fatalf("Expected KindAuthorizationRevoked, got %v", err)
	}

	if m.State() != model.SessionAnonymous {
		t.Errorf("Expected anonymous after revocation, got %s", m.State())
	}
	if token, _ := store.Token(); token != "" {
		t.Error("Expected credential cleared")
	}
	if !forced {
		t.Error("Expected forced-logout callback to fire")
	}
}

func TestClearError(t *testing.T) {
	backend := newStubBackend(t)
	m, _ := newManager(backend.URL)

	_ = m.Login(context.Background(), "ada@example.com", "wrong")
	if m.State() != model.SessionError {
		t.Fatalf("Expected error state, got %s", m.State())
	}

	m.ClearError()
	if m.State() != model.SessionAnonymous {
		t.Errorf("Expected anonymous after clearing error, got %s", m.State())
	}
	if m.ErrorMessage() != "" {
		t.Errorf("Expected empty message, got %q", m.ErrorMessage())
	}
}

func TestOperationsClearPreviousError(t *testing.T) {
	backend := newStubBackend(t)
	m, _ := newManager(backend.URL)

	_ = m.Login(context.Background(), "ada@example.com", "wrong")
	if m.ErrorMessage() == "" {
		t.Fatal("Expected retained error message")
	}

	if err := m.Login(context.Background(), "ada@example.com", "analytical"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.ErrorMessage() != "" {
		t.Errorf("Expected error cleared by next operation, got %q", m.ErrorMessage())
	}
}
