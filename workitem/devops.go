package workitem

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/webapi"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/workitemtracking"
)

// maxBatchSize is the largest id list the work items batch endpoint accepts
const maxBatchSize = 200

// trackingClient is the subset of workitemtracking.Client used by DevOpsRepository
type trackingClient interface {
	GetWorkItem(context.Context, workitemtracking.GetWorkItemArgs) (*workitemtracking.WorkItem, error)
	GetWorkItems(context.Context, workitemtracking.GetWorkItemsArgs) (*[]workitemtracking.WorkItem, error)
	UpdateWorkItem(context.Context, workitemtracking.UpdateWorkItemArgs) (*workitemtracking.WorkItem, error)
}

// DevOpsRepository implements Repository against the Azure DevOps work item
// tracking REST API
type DevOpsRepository struct {
	client trackingClient
}

// NewDevOpsRepository connects to an organization URL using a personal access token
func NewDevOpsRepository(ctx context.Context, organizationURL, pat string) (*DevOpsRepository, error) {
	connection := azuredevops.NewPatConnection(organizationURL, pat)

	client, err := workitemtracking.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create work item tracking client for %s: %w", organizationURL, err)
	}

	return &DevOpsRepository{client: client}, nil
}

// GetByID fetches a work item with relations expanded
func (r *DevOpsRepository) GetByID(ctx context.Context, id int) (*WorkItem, error) {
	item, err := r.client.GetWorkItem(ctx, workitemtracking.GetWorkItemArgs{
		Id:     &id,
		Expand: &workitemtracking.WorkItemExpandValues.Relations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get work item %d: %w", id, classifyError(err))
	}
	if item == nil {
		return nil, fmt.Errorf("work item %d: %w", id, ErrNotFound)
	}

	converted := toWorkItem(item)
	return &converted, nil
}

// GetParent resolves the id in relationURL and fetches that item
func (r *DevOpsRepository) GetParent(ctx context.Context, relationURL string) (*WorkItem, error) {
	id, err := ExtractID(relationURL)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ListChildren fetches only the state field of every child of parent
func (r *DevOpsRepository) ListChildren(ctx context.Context, parent *WorkItem) ([]WorkItem, error) {
	ids := make([]int, 0, len(parent.ChildURLs))
	for _, url := range parent.ChildURLs {
		id, err := ExtractID(url)
		if err != nil {
			return nil, fmt.Errorf("child of work item %d: %w", parent.ID, err)
		}
		ids = append(ids, id)
	}

	children := make([]WorkItem, 0, len(ids))
	fields := []string{FieldState}

	for start := 0; start < len(ids); start += maxBatchSize {
		end := min(start+maxBatchSize, len(ids))
		batch := ids[start:end]

		items, err := r.client.GetWorkItems(ctx, workitemtracking.GetWorkItemsArgs{
			Ids:    &batch,
			Fields: &fields,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list children of work item %d: %w", parent.ID, classifyError(err))
		}
		if items == nil {
			continue
		}
		for i := range *items {
			children = append(children, toWorkItem(&(*items)[i]))
		}
	}

	return children, nil
}

// UpdateState sets item's state with a "test /rev" precondition so a
// concurrent change to the item rejects the update
func (r *DevOpsRepository) UpdateState(ctx context.Context, item *WorkItem, newState string) (*WorkItem, error) {
	document := statePatch(item.Revision, newState)

	updated, err := r.client.UpdateWorkItem(ctx, workitemtracking.UpdateWorkItemArgs{
		Id:       &item.ID,
		Document: &document,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update work item %d to %q: %w", item.ID, newState, classifyError(err))
	}
	if updated == nil {
		return nil, fmt.Errorf("work item %d: %w", item.ID, ErrNotFound)
	}

	converted := toWorkItem(updated)
	return &converted, nil
}

// statePatch builds the conditional JSON patch document for a state change
func statePatch(revision int, newState string) []webapi.JsonPatchOperation {
	revPath := "/rev"
	statePath := "/fields/" + FieldState

	return []webapi.JsonPatchOperation{
		{
			Op:    &webapi.OperationValues.Test,
			Path:  &revPath,
			Value: revision,
		},
		{
			Op:    &webapi.OperationValues.Add,
			Path:  &statePath,
			Value: newState,
		},
	}
}

// toWorkItem flattens the API representation into a WorkItem
func toWorkItem(item *workitemtracking.WorkItem) WorkItem {
	var w WorkItem

	if item.Id != nil {
		w.ID = *item.Id
	}
	if item.Rev != nil {
		w.Revision = *item.Rev
	}
	if item.Fields != nil {
		if state, ok := (*item.Fields)[FieldState].(string); ok {
			w.State = state
		}
	}
	if item.Relations != nil {
		for _, rel := range *item.Relations {
			if rel.Rel == nil || rel.Url == nil {
				continue
			}
			switch *rel.Rel {
			case RelationParent:
				if w.ParentURL == "" {
					w.ParentURL = *rel.Url
				}
			case RelationChild:
				w.ChildURLs = append(w.ChildURLs, *rel.Url)
			}
		}
	}

	return w
}

// classifyError maps API status codes onto the package's sentinel errors
func classifyError(err error) error {
	status, ok := statusCode(err)
	if !ok {
		return err
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %v", ErrRevisionConflict, err)
	}
	return err
}

func statusCode(err error) (int, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch wrapped := e.(type) {
		case azuredevops.WrappedError:
			if wrapped.StatusCode != nil {
				return *wrapped.StatusCode, true
			}
		case *azuredevops.WrappedError:
			if wrapped != nil && wrapped.StatusCode != nil {
				return *wrapped.StatusCode, true
			}
		}
	}
	return 0, false
}
