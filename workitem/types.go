package workitem

// Relation and field reference names used by the work item tracking API
const (
	RelationChild  = "System.LinkTypes.Hierarchy-Forward"
	RelationParent = "System.LinkTypes.Hierarchy-Reverse"

	FieldState        = "System.State"
	FieldWorkItemType = "System.WorkItemType"
	FieldAreaPath     = "System.AreaPath"
)

// WorkItem is the slice of a tracked work item the propagation engine reads.
// Values are fetched fresh for every evaluation and never cached.
type WorkItem struct {
	ID       int
	Revision int
	State    string

	// ParentURL is the URL of the reverse-hierarchy relation, empty when the
	// item has no parent.
	ParentURL string

	// ChildURLs holds the URLs of forward-hierarchy relations in API order.
	ChildURLs []string
}

// HasParent reports whether the item carries a reverse-hierarchy relation
func (w *WorkItem) HasParent() bool {
	return w.ParentURL != ""
}
