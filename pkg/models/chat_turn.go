package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatSender identifies who authored a chat turn.
type ChatSender string

const (
	ChatSenderUser      ChatSender = "user"
	ChatSenderAssistant ChatSender = "assistant"
)

// ChatTurn is one append-only message in a chat session.
type ChatTurn struct {
	ID          uuid.UUID  `json:"id"`
	SessionUUID uuid.UUID  `json:"session_uuid"`
	Username    string     `json:"username"`
	Sender      ChatSender `json:"sender"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChatRequest is the input of the chat operation.
type ChatRequest struct {
	Username    string    `json:"username"`
	SessionUUID uuid.UUID `json:"session_uuid"`
	Query       string    `json:"query"`
}

// ChatAnswer is the output of the chat operation.
type ChatAnswer struct {
	Answer     string            `json:"answer"`
	Candidates map[string]string `json:"candidates,omitempty"`
	Matched    []string          `json:"matched,omitempty"`
}
