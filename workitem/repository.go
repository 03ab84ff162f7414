// Package workitem defines the work item model, the repository contract the
// propagation engine depends on and its Azure DevOps implementation.
package workitem

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a work item does not exist or is not visible
	ErrNotFound = errors.New("work item not found")

	// ErrMalformedURL is returned when a relation URL carries no work item id
	ErrMalformedURL = errors.New("malformed work item url")

	// ErrRevisionConflict is returned when an update precondition fails because
	// the item changed since it was read
	ErrRevisionConflict = errors.New("work item revision conflict")
)

// Repository fetches and updates work items.
// Implementations must honour ctx cancellation on every call and must return
// errors wrapping ErrNotFound, ErrMalformedURL or ErrRevisionConflict where
// those apply, so callers can tell absence from transport failure.
type Repository interface {
	// GetByID fetches a work item with its relations expanded
	GetByID(ctx context.Context, id int) (*WorkItem, error)

	// GetParent resolves a reverse-hierarchy relation URL to the parent item
	GetParent(ctx context.Context, relationURL string) (*WorkItem, error)

	// ListChildren fetches the state of every forward-hierarchy child of parent
	ListChildren(ctx context.Context, parent *WorkItem) ([]WorkItem, error)

	// UpdateState sets the state of item, guarded by item.Revision
	UpdateState(ctx context.Context, item *WorkItem, newState string) (*WorkItem, error)
}
