package approval

import "fmt"

// NotFoundError reports an unknown approval request id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("approval request not found: %s", e.ID)
}

// AlreadyResolvedError reports an attempt to re-resolve a terminal request.
type AlreadyResolvedError struct {
	ID     string
	Status Status
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("approval request %s already resolved as %s", e.ID, e.Status)
}
