package model

import (
	"time"
)

// User represents the authenticated user's profile as returned by /api/auth/me
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SessionState constants
const (
	SessionAnonymous      = "anonymous"
	SessionAuthenticating = "authenticating"
	SessionAuthenticated  = "authenticated"
	SessionError          = "error"
)
