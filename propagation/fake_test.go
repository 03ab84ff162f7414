package propagation

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/liamcoop/propagation/event"
	"github.com/liamcoop/propagation/rules"
	"github.com/liamcoop/propagation/workitem"
)

const itemURL = "https://dev.azure.com/contoso/_apis/wit/workItems/"

func urlFor(id int) string {
	return itemURL + strconv.Itoa(id)
}

// fakeRepository serves work items from a map and counts every call
type fakeRepository struct {
	mu    sync.Mutex
	items map[int]*workitem.WorkItem

	getErr    error
	listErr   error
	updateErr error

	// cancel, when set, runs before ListChildren returns
	cancel func()

	gets    int
	lists   int
	updates []update
}

type update struct {
	id       int
	revision int
	state    string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{items: make(map[int]*workitem.WorkItem)}
}

func (f *fakeRepository) add(item workitem.WorkItem) *fakeRepository {
	f.items[item.ID] = &item
	return f
}

func (f *fakeRepository) GetByID(ctx context.Context, id int) (*workitem.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("work item %d: %w", id, workitem.ErrNotFound)
	}
	copied := *item
	return &copied, nil
}

func (f *fakeRepository) GetParent(ctx context.Context, relationURL string) (*workitem.WorkItem, error) {
	id, err := workitem.ExtractID(relationURL)
	if err != nil {
		return nil, err
	}
	return f.GetByID(ctx, id)
}

func (f *fakeRepository) ListChildren(ctx context.Context, parent *workitem.WorkItem) ([]workitem.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++

	if f.cancel != nil {
		defer f.cancel()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}

	children := make([]workitem.WorkItem, 0, len(parent.ChildURLs))
	for _, url := range parent.ChildURLs {
		id, err := workitem.ExtractID(url)
		if err != nil {
			return nil, err
		}
		item, ok := f.items[id]
		if !ok {
			return nil, fmt.Errorf("work item %d: %w", id, workitem.ErrNotFound)
		}
		children = append(children, workitem.WorkItem{ID: item.ID, Revision: item.Revision, State: item.State})
	}
	return children, nil
}

func (f *fakeRepository) UpdateState(ctx context.Context, item *workitem.WorkItem, newState string) (*workitem.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update{id: item.ID, revision: item.Revision, state: newState})

	if f.updateErr != nil {
		return nil, f.updateErr
	}
	stored := f.items[item.ID]
	if stored.Revision != item.Revision {
		return nil, fmt.Errorf("work item %d: %w", item.ID, workitem.ErrRevisionConflict)
	}
	stored.State = newState
	stored.Revision++
	copied := *stored
	return &copied, nil
}

// family builds a parent with the given children; the first child is the one
// whose change is evaluated
func family(parentState string, childStates ...string) *fakeRepository {
	repo := newFakeRepository()
	parent := workitem.WorkItem{ID: 1, Revision: 7, State: parentState}
	for i, state := range childStates {
		id := 100 + i
		parent.ChildURLs = append(parent.ChildURLs, urlFor(id))
		repo.add(workitem.WorkItem{ID: id, Revision: 1, State: state, ParentURL: urlFor(1)})
	}
	return repo.add(parent)
}

func changeEvent(state string) event.ChangeEvent {
	return event.ChangeEvent{
		Organization: "contoso",
		WorkItemID:   100,
		WorkItemType: "Task",
		NewState:     state,
		StateChanged: true,
		EventType:    event.TypeWorkItemUpdated,
	}
}

func mustParse(doc string) *rules.RuleSet {
	rs, err := rules.ParseDocument([]byte(doc))
	if err != nil {
		panic(err)
	}
	return rs
}

// fakeRuleSource counts rule lookups
type fakeRuleSource struct {
	exists    bool
	existsErr error
	ruleSet   *rules.RuleSet
	err       error

	existsCalls  int
	resolveCalls int
}

func (f *fakeRuleSource) Exists(_ context.Context, _ string) (bool, error) {
	f.existsCalls++
	return f.exists, f.existsErr
}

func (f *fakeRuleSource) Resolve(_ context.Context, _ string) (*rules.RuleSet, error) {
	f.resolveCalls++
	return f.ruleSet, f.err
}

// fakeProvider hands out a single repository
type fakeProvider struct {
	repo  workitem.Repository
	err   error
	calls int
}

func (f *fakeProvider) Repository(_ context.Context, _ string) (workitem.Repository, error) {
	f.calls++
	return f.repo, f.err
}
