package toolexec

import "fmt"

// NotRegisteredError reports a tool name with no registered handler.
type NotRegisteredError struct {
	Tool string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("tool not registered: %s", e.Tool)
}
