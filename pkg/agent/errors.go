package agent

import "fmt"

// MissingToolHandlerError reports a declared tool with no registered
// handler. It fails a run before the first model call.
type MissingToolHandlerError struct {
	Agent string
	Tool  string
}

func (e *MissingToolHandlerError) Error() string {
	return fmt.Sprintf("agent %s declares tool %s but no handler is registered", e.Agent, e.Tool)
}
