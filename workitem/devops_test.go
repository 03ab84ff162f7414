package workitem

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/webapi"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/workitemtracking"
)

// fakeTrackingClient serves canned items keyed by id
type fakeTrackingClient struct {
	items     map[int]*workitemtracking.WorkItem
	getErr    error
	updateErr error

	batches [][]int
	fields  [][]string
	updates []workitemtracking.UpdateWorkItemArgs
}

func (f *fakeTrackingClient) GetWorkItem(_ context.Context, args workitemtracking.GetWorkItemArgs) (*workitemtracking.WorkItem, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[*args.Id]
	if !ok {
		return nil, apiError(http.StatusNotFound)
	}
	return item, nil
}

func (f *fakeTrackingClient) GetWorkItems(_ context.Context, args workitemtracking.GetWorkItemsArgs) (*[]workitemtracking.WorkItem, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.batches = append(f.batches, append([]int(nil), (*args.Ids)...))
	if args.Fields != nil {
		f.fields = append(f.fields, *args.Fields)
	}

	result := make([]workitemtracking.WorkItem, 0, len(*args.Ids))
	for _, id := range *args.Ids {
		item, ok := f.items[id]
		if !ok {
			return nil, apiError(http.StatusNotFound)
		}
		result = append(result, *item)
	}
	return &result, nil
}

func (f *fakeTrackingClient) UpdateWorkItem(_ context.Context, args workitemtracking.UpdateWorkItemArgs) (*workitemtracking.WorkItem, error) {
	f.updates = append(f.updates, args)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	item := f.items[*args.Id]
	rev := *item.Rev + 1
	state := (*args.Document)[1].Value.(string)
	return apiItem(*args.Id, rev, state), nil
}

func apiError(status int) error {
	message := http.StatusText(status)
	return &azuredevops.WrappedError{Message: &message, StatusCode: &status}
}

func apiItem(id, rev int, state string, relations ...workitemtracking.WorkItemRelation) *workitemtracking.WorkItem {
	fields := map[string]any{FieldState: state}
	item := &workitemtracking.WorkItem{Id: &id, Rev: &rev, Fields: &fields}
	if len(relations) > 0 {
		item.Relations = &relations
	}
	return item
}

func relation(rel string, id int) workitemtracking.WorkItemRelation {
	url := fmt.Sprintf("https://dev.azure.com/contoso/_apis/wit/workItems/%d", id)
	return workitemtracking.WorkItemRelation{Rel: &rel, Url: &url}
}

func TestToWorkItemFlattensRelations(t *testing.T) {
	item := apiItem(10, 3, "Active",
		relation(RelationChild, 11),
		relation("System.LinkTypes.Related", 99),
		relation(RelationParent, 1),
		relation(RelationChild, 12),
	)

	got := toWorkItem(item)

	if got.ID != 10 || got.Revision != 3 || got.State != "Active" {
		t.Errorf("toWorkItem() = %+v, want id 10 rev 3 state Active", got)
	}
	if got.ParentURL != "https://dev.azure.com/contoso/_apis/wit/workItems/1" {
		t.Errorf("ParentURL = %q", got.ParentURL)
	}
	if len(got.ChildURLs) != 2 {
		t.Fatalf("ChildURLs = %v, want 2 entries", got.ChildURLs)
	}
}

func TestToWorkItemMissingState(t *testing.T) {
	id := 5
	got := toWorkItem(&workitemtracking.WorkItem{Id: &id})

	if got.State != "" {
		t.Errorf("State = %q, want empty", got.State)
	}
	if got.HasParent() {
		t.Error("item without relations should have no parent")
	}
}

func TestDevOpsRepositoryGetByIDNotFound(t *testing.T) {
	repo := &DevOpsRepository{client: &fakeTrackingClient{items: map[int]*workitemtracking.WorkItem{}}}

	_, err := repo.GetByID(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestDevOpsRepositoryGetByIDTransportError(t *testing.T) {
	transport := errors.New("connection reset")
	repo := &DevOpsRepository{client: &fakeTrackingClient{getErr: transport}}

	_, err := repo.GetByID(context.Background(), 1)
	if !errors.Is(err, transport) {
		t.Errorf("GetByID() error = %v, want transport error", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("transport error must not be reported as not found")
	}
}

func TestDevOpsRepositoryGetParentMalformedURL(t *testing.T) {
	client := &fakeTrackingClient{items: map[int]*workitemtracking.WorkItem{}}
	repo := &DevOpsRepository{client: client}

	_, err := repo.GetParent(context.Background(), "https://dev.azure.com/contoso/_apis/wit/workItems/x")
	if !errors.Is(err, ErrMalformedURL) {
		t.Errorf("GetParent() error = %v, want ErrMalformedURL", err)
	}
}

func TestDevOpsRepositoryListChildrenBatches(t *testing.T) {
	items := map[int]*workitemtracking.WorkItem{}
	parent := &WorkItem{ID: 1}
	for id := 2; id < 2+450; id++ {
		items[id] = apiItem(id, 1, "Done")
		parent.ChildURLs = append(parent.ChildURLs, fmt.Sprintf("https://dev.azure.com/contoso/_apis/wit/workItems/%d", id))
	}
	client := &fakeTrackingClient{items: items}
	repo := &DevOpsRepository{client: client}

	children, err := repo.ListChildren(context.Background(), parent)
	if err != nil {
		t.Fatalf("ListChildren() failed: %v", err)
	}

	if len(children) != 450 {
		t.Errorf("ListChildren() returned %d children, want 450", len(children))
	}
	if len(client.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(client.batches))
	}
	for i, want := range []int{200, 200, 50} {
		if len(client.batches[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(client.batches[i]), want)
		}
	}
	for _, f := range client.fields {
		if len(f) != 1 || f[0] != FieldState {
			t.Errorf("children should be fetched with only the state field, got %v", f)
		}
	}
}

func TestDevOpsRepositoryListChildrenNoRelations(t *testing.T) {
	client := &fakeTrackingClient{}
	repo := &DevOpsRepository{client: client}

	children, err := repo.ListChildren(context.Background(), &WorkItem{ID: 1})
	if err != nil {
		t.Fatalf("ListChildren() failed: %v", err)
	}
	if len(children) != 0 {
		t.Errorf("expected no children, got %d", len(children))
	}
	if len(client.batches) != 0 {
		t.Error("no request should be made for a parent without children")
	}
}

func TestDevOpsRepositoryListChildrenMalformedRelation(t *testing.T) {
	repo := &DevOpsRepository{client: &fakeTrackingClient{}}
	parent := &WorkItem{ID: 1, ChildURLs: []string{"https://dev.azure.com/contoso/_apis/wit/workItems/"}}

	_, err := repo.ListChildren(context.Background(), parent)
	if !errors.Is(err, ErrMalformedURL) {
		t.Errorf("ListChildren() error = %v, want ErrMalformedURL", err)
	}
}

func TestDevOpsRepositoryUpdateStatePatch(t *testing.T) {
	client := &fakeTrackingClient{items: map[int]*workitemtracking.WorkItem{
		7: apiItem(7, 12, "Active"),
	}}
	repo := &DevOpsRepository{client: client}

	updated, err := repo.UpdateState(context.Background(), &WorkItem{ID: 7, Revision: 12, State: "Active"}, "Resolved")
	if err != nil {
		t.Fatalf("UpdateState() failed: %v", err)
	}
	if updated.State != "Resolved" || updated.Revision != 13 {
		t.Errorf("UpdateState() = %+v, want state Resolved rev 13", updated)
	}

	if len(client.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(client.updates))
	}
	doc := *client.updates[0].Document
	if len(doc) != 2 {
		t.Fatalf("patch should have 2 operations, got %d", len(doc))
	}
	if *doc[0].Op != webapi.OperationValues.Test || *doc[0].Path != "/rev" || doc[0].Value != 12 {
		t.Errorf("first operation should test /rev == 12, got %s %s %v", *doc[0].Op, *doc[0].Path, doc[0].Value)
	}
	if *doc[1].Op != webapi.OperationValues.Add || *doc[1].Path != "/fields/System.State" || doc[1].Value != "Resolved" {
		t.Errorf("second operation should set state, got %s %s %v", *doc[1].Op, *doc[1].Path, doc[1].Value)
	}
}

func TestDevOpsRepositoryUpdateStateConflict(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusPreconditionFailed} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			client := &fakeTrackingClient{updateErr: apiError(status)}
			repo := &DevOpsRepository{client: client}

			_, err := repo.UpdateState(context.Background(), &WorkItem{ID: 7, Revision: 3}, "Resolved")
			if !errors.Is(err, ErrRevisionConflict) {
				t.Errorf("UpdateState() error = %v, want ErrRevisionConflict", err)
			}
		})
	}
}
