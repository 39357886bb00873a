package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned for a missing, malformed, forged or expired credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrAuthorization is returned when a role-gated action is attempted by the wrong role.
	ErrAuthorization = errors.New("not allowed for this role")
	// ErrQuizNotFound indicates the quiz content could not be loaded for an invite code.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions is a NotFound flavour: the quiz exists but has nothing to play.
	ErrNoQuestions = fmt.Errorf("%w: quiz has no questions", ErrQuizNotFound)
	// ErrSessionNotFound is returned when no live session runs for an invite code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionActive is the conflict returned when a session is already running.
	ErrSessionActive = errors.New("quiz session already running")
	// ErrUserNotFound is returned by user directories for unknown ids.
	ErrUserNotFound = errors.New("user not found")
)

// IsNotFound groups the NotFound family of errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuizNotFound) || errors.Is(err, ErrSessionNotFound)
}
