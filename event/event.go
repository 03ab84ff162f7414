// Package event decodes Azure DevOps service hook deliveries into typed change events.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TypeWorkItemUpdated is the only service hook event type accepted
const TypeWorkItemUpdated = "workitem.updated"

// ErrInvalidEvent is returned when a delivery is malformed, of the wrong type
// or missing the work item id or type
var ErrInvalidEvent = errors.New("invalid event")

// ChangeEvent is a validated work item update
type ChangeEvent struct {
	// Organization is empty when the resource URL matches no known host pattern
	Organization string
	WorkItemID   int
	WorkItemType string
	NewState     string

	// StateChanged is false when the update did not touch System.State
	StateChanged bool

	EventType   string
	TeamProject string
}

type payload struct {
	EventType string    `json:"eventType"`
	Resource  *resource `json:"resource"`
}

type resource struct {
	URL        string         `json:"url"`
	WorkItemID workItemID     `json:"workItemId"`
	Revision   *revision      `json:"revision"`
	Fields     *changedFields `json:"fields"`
}

type revision struct {
	Fields struct {
		WorkItemType string `json:"System.WorkItemType"`
		AreaPath     string `json:"System.AreaPath"`
	} `json:"fields"`
}

type changedFields struct {
	State    *fieldChange    `json:"System.State"`
	AreaPath json.RawMessage `json:"System.AreaPath"`
}

type fieldChange struct {
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

// workItemID accepts a JSON number or a numeric string
type workItemID int

func (id *workItemID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("workItemId %s is not an integer", data)
	}
	*id = workItemID(n)
	return nil
}

// Normalize decodes a service hook delivery from r.
// Unknown fields are ignored. Errors wrap ErrInvalidEvent.
func Normalize(r io.Reader) (ChangeEvent, error) {
	var p payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if p.EventType != TypeWorkItemUpdated {
		return ChangeEvent{}, fmt.Errorf("%w: unexpected event type %q", ErrInvalidEvent, p.EventType)
	}
	if p.Resource == nil {
		return ChangeEvent{}, fmt.Errorf("%w: missing resource", ErrInvalidEvent)
	}

	res := p.Resource
	if res.WorkItemID <= 0 {
		return ChangeEvent{}, fmt.Errorf("%w: work item id must be positive", ErrInvalidEvent)
	}

	var workItemType string
	if res.Revision != nil {
		workItemType = strings.TrimSpace(res.Revision.Fields.WorkItemType)
	}
	if workItemType == "" {
		return ChangeEvent{}, fmt.Errorf("%w: missing work item type", ErrInvalidEvent)
	}

	ev := ChangeEvent{
		Organization: Organization(res.URL),
		WorkItemID:   int(res.WorkItemID),
		WorkItemType: workItemType,
		EventType:    p.EventType,
		TeamProject:  areaPath(res),
	}

	if res.Fields != nil && res.Fields.State != nil && res.Fields.State.NewValue != nil {
		ev.NewState = *res.Fields.State.NewValue
		ev.StateChanged = true
	}

	return ev, nil
}

// areaPath reads System.AreaPath from the changed fields, either as a change
// object or a plain value, and falls back to the revision
func areaPath(res *resource) string {
	if res.Fields != nil && len(res.Fields.AreaPath) > 0 {
		var change fieldChange
		if err := json.Unmarshal(res.Fields.AreaPath, &change); err == nil && change.NewValue != nil {
			return *change.NewValue
		}
		var plain string
		if err := json.Unmarshal(res.Fields.AreaPath, &plain); err == nil && plain != "" {
			return plain
		}
	}
	if res.Revision != nil {
		return res.Revision.Fields.AreaPath
	}
	return ""
}

// Organization extracts the organization name from a resource URL.
// Both {org}.visualstudio.com and dev.azure.com/{org}/ hosts are recognised;
// any other URL yields "".
func Organization(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")

	host, path, _ := strings.Cut(url, "/")
	host = strings.ToLower(host)

	if org, ok := strings.CutSuffix(host, ".visualstudio.com"); ok {
		return org
	}

	if host == "dev.azure.com" {
		org, _, _ := strings.Cut(path, "/")
		return org
	}

	return ""
}
