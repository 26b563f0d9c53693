package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidName           = errors.New("invalid name")
	ErrInvalidContainment    = errors.New("invalid containment")
	ErrGraphIntegrity        = errors.New("graph integrity violation")
	ErrGraphUnavailable      = errors.New("schema graph store unavailable")
	ErrEmptyGraph            = errors.New("schema graph is empty")
	ErrSessionMismatch       = errors.New("session mismatch between request and token")
	ErrSessionNotFound       = errors.New("no such session")
	ErrExportPrecondition    = errors.New("export precondition not met")
	ErrExportBusy            = errors.New("too many exports in progress")
	ErrProviderFailure       = errors.New("model provider failure")
	ErrParseFailure          = errors.New("could not recover structured model output")
	ErrUnsupportedSourceType = errors.New("unsupported schema source type")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUnauthenticated       = errors.New("authentication required")
	ErrUserMismatch          = errors.New("username does not match token")
)

// GraphIntegrityError reports a write that referenced a schema object that
// does not exist (or exists with the wrong kind).
type GraphIntegrityError struct {
	Operation   string // "import_field", "create_edge"
	Role        string // "owner", "parent", "child"
	MissingName string
	Reason      string
}

func (e *GraphIntegrityError) Error() string {
	msg := fmt.Sprintf("%s: %s %q not found", e.Operation, e.Role, e.MissingName)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Is makes errors.Is(err, ErrGraphIntegrity) match.
func (e *GraphIntegrityError) Is(target error) bool {
	return target == ErrGraphIntegrity
}

// NewMissingEndpoint builds a GraphIntegrityError for a missing endpoint.
func NewMissingEndpoint(operation, role, name string) *GraphIntegrityError {
	return &GraphIntegrityError{Operation: operation, Role: role, MissingName: name}
}

// SessionMismatchError is returned when the session UUID in a request is not
// the one bound to the caller's token.
type SessionMismatchError struct {
	RequestSession string
	TokenSession   string
}

func (e *SessionMismatchError) Error() string {
	return fmt.Sprintf("session %q does not match token session", e.RequestSession)
}

func (e *SessionMismatchError) Is(target error) bool {
	return target == ErrSessionMismatch
}

// Export precondition codes.
const (
	PreconditionTabularMissing = "tabular_export_missing"
)

// ExportPreconditionError rejects an export whose input artifact is absent.
type ExportPreconditionError struct {
	Code     string
	Artifact string
}

func (e *ExportPreconditionError) Error() string {
	return fmt.Sprintf("%s: required artifact %s does not exist", e.Code, e.Artifact)
}

func (e *ExportPreconditionError) Is(target error) bool {
	return target == ErrExportPrecondition
}
