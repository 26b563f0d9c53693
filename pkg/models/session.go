package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the metadata kept in the TTL-bounded session cache.
type Session struct {
	UUID      uuid.UUID `json:"uuid"`
	Username  string    `json:"username"`
	Subject   string    `json:"subject,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LogoutOutcome is the result of a logout.
type LogoutOutcome string

const (
	LogoutRemoved   LogoutOutcome = "removed"
	LogoutNoSession LogoutOutcome = "no_such_session"
)
