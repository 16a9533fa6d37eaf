package bot

import (
	"errors"
	"fmt"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyQuery      = errors.New("query is empty")
	ErrBlankName       = errors.New("session name is blank")
)

// EmbeddingError aborts a turn: the query could not be embedded.
type EmbeddingError struct {
	Persona string
	Err     error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed query for %s: %v", e.Persona, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// SessionInvariantError is returned when an operation would leave a persona
// with no sessions.
type SessionInvariantError struct {
	Persona string
}

func (e *SessionInvariantError) Error() string {
	return fmt.Sprintf("persona %s must keep at least one session", e.Persona)
}
