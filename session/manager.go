package session

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/legalai/legalai/client/model"
	"github.com/legalai/legalai/client/pkg/logger"
	"github.com/legalai/legalai/client/transport"
)

// ErrAuthInFlight is returned when a second authentication is attempted
// while one is already running.
var ErrAuthInFlight = errors.New("authentication already in progress")

// ErrLoggedOut is returned when an authentication result arrives after the
// session was logged out; the result is discarded, not applied.
var ErrLoggedOut = errors.New("session was logged out during authentication")

// Manager is the state machine over the user's identity. It owns the
// Anonymous / Authenticating / Authenticated / Error states and is the only
// component that tells the transport to persist or clear the credential.
//
// At most one authentication is in flight at a time. Logout bumps a
// generation counter; any authentication result carrying a stale generation
// is discarded rather than applied.
type Manager struct {
	mu         sync.Mutex
	client     *transport.Client
	state      string
	user       *model.User
	errMsg     string
	generation uint64
	inFlight   bool

	onForcedLogout []func()
}

func NewManager(client *transport.Client) *Manager {
	m := &Manager{
		client: client,
		state:  model.SessionAnonymous,
	}
	client.SetRevokedHandler(m.forceLogout)
	return m
}

// State returns the current session state
func (m *Manager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns the authenticated identity, or nil
func (m *Manager) User() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// ErrorMessage returns the retained failure message, or ""
func (m *Manager) ErrorMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// ClearError drops the retained failure message and returns an errored
// session to Anonymous
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = ""
	if m.state == model.SessionError {
		m.state = model.SessionAnonymous
	}
}

// OnForcedLogout registers a callback fired when the backend revokes the
// credential of a live session
func (m *Manager) OnForcedLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onForcedLogout = append(m.onForcedLogout, fn)
}

// Login exchanges email and password for a token, then fetches the profile
// bound to that token. Both calls must succeed; otherwise the session ends
// up credential-less with an error message.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	gen, err := m.begin()
	if err != nil {
		return err
	}

	token, user, authErr := m.passwordGrant(ctx, email, password)
	return m.finish(gen, token, user, authErr)
}

// Signup registers a new account and chains into Login, so a successful
// signup leaves the session in exactly the state a successful login would.
func (m *Manager) Signup(ctx context.Context, name, email, password string) error {
	gen, err := m.begin()
	if err != nil {
		return err
	}

	var created model.User
	if err := m.client.PostJSON(ctx, "/api/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &created); err != nil {
		return m.finish(gen, "", nil, err)
	}

	token, user, authErr := m.passwordGrant(ctx, email, password)
	return m.finish(gen, token, user, authErr)
}

// GoogleLogin exchanges a Google-issued token for this system's own
// credential, then fetches the profile like Login does.
func (m *Manager) GoogleLogin(ctx context.Context, googleToken string) error {
	gen, err := m.begin()
	if err != nil {
		return err
	}

	var tokenResp tokenResponse
	if err := m.client.PostJSON(ctx, "/api/auth/google", map[string]string{
		"token": googleToken,
	}, &tokenResp); err != nil {
		return m.finish(gen, "", nil, err)
	}

	user, err := m.whoAmI(ctx, tokenResp.AccessToken)
	return m.finish(gen, tokenResp.AccessToken, user, err)
}

// Restore rehydrates the session from a previously persisted credential by
// fetching the profile. With no stored credential it is a no-op. A rejected
// credential takes the forced-logout path.
func (m *Manager) Restore(ctx context.Context) error {
	if !m.client.HasToken() {
		return nil
	}

	gen, err := m.begin()
	if err != nil {
		return err
	}

	var user model.User
	authErr := m.client.GetJSON(ctx, "/api/auth/me", &user)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false

	if m.generation != gen {
		// the credential was revoked or the user logged out mid-flight;
		// forceLogout/Logout already reset the session
		if authErr != nil {
			return authErr
		}
		return ErrLoggedOut
	}
	if authErr != nil {
		m.state = model.SessionError
		m.errMsg = userMessage(authErr)
		m.user = nil
		return authErr
	}

	m.state = model.SessionAuthenticated
	m.user = &user
	return nil
}

// Logout synchronously resets the session and always succeeds. In-flight
// authentication results arriving afterward are discarded.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.generation++
	m.state = model.SessionAnonymous
	m.user = nil
	m.errMsg = ""
	m.mu.Unlock()

	if err := m.client.ClearToken(); err != nil {
		logger.Warn(context.Background(), "failed to clear token on logout", "error", err)
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// passwordGrant performs the form-encoded token call followed by the
// who-am-I call using the just-issued token
func (m *Manager) passwordGrant(ctx context.Context, email, password string) (string, *model.User, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var tokenResp tokenResponse
	if err := m.client.PostForm(ctx, "/api/auth/login", form, &tokenResp); err != nil {
		return "", nil, err
	}

	user, err := m.whoAmI(ctx, tokenResp.AccessToken)
	if err != nil {
		return "", nil, err
	}
	return tokenResp.AccessToken, user, nil
}

func (m *Manager) whoAmI(ctx context.Context, token string) (*model.User, error) {
	var user model.User
	if err := m.client.GetJSONWithToken(ctx, "/api/auth/me", token, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// begin clears any retained error and moves the session to Authenticating.
// It fails if another authentication is already in flight, and returns the
// generation the eventual result must match.
func (m *Manager) begin() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inFlight {
		return 0, ErrAuthInFlight
	}
	m.inFlight = true
	m.errMsg = ""
	m.state = model.SessionAuthenticating
	return m.generation, nil
}

// finish applies an authentication result unless the session generation
// moved while the calls were in flight, in which case the result is
// discarded and no credential is persisted.
func (m *Manager) finish(gen uint64, token string, user *model.User, authErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false

	if m.generation != gen {
		logger.Info(context.Background(), "discarding stale authentication result")
		if authErr != nil {
			return authErr
		}
		return ErrLoggedOut
	}

	if authErr != nil {
		m.state = model.SessionError
		m.errMsg = userMessage(authErr)
		m.user = nil
		return authErr
	}

	if err := m.client.PersistToken(token); err != nil {
		m.state = model.SessionError
		m.errMsg = "could not save session"
		m.user = nil
		return err
	}

	m.state = model.SessionAuthenticated
	m.user = user
	m.errMsg = ""
	return nil
}

// userMessage extracts the display message from a client error
func userMessage(err error) string {
	var te *transport.Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return err.Error()
}

// forceLogout is the revocation hook installed on the transport. The
// transport has already cleared the credential; this resets identity and
// notifies listeners. Safe to call repeatedly.
func (m *Manager) forceLogout() {
	m.mu.Lock()
	wasAuthenticated := m.user != nil
	m.generation++
	m.state = model.SessionAnonymous
	m.user = nil
	m.errMsg = ""
	callbacks := make([]func(), len(m.onForcedLogout))
	copy(callbacks, m.onForcedLogout)
	m.mu.Unlock()

	if wasAuthenticated {
		logger.Info(context.Background(), "session invalidated by server")
	}
	for _, fn := range callbacks {
		fn()
	}
}
