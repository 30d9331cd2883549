package session

import (
	"errors"
	"fmt"
)

// ErrUnknownSession indicates a mutation against a session id the store
// does not hold. Reads return (nil, nil) instead.
var ErrUnknownSession = errors.New("unknown session")

var errEmptySessionID = errors.New("session id cannot be empty")

func errUnknownSession(sessionID string) error {
	return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
}
