package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// RuleSet is the ordered list of propagation rules configured for one work item type.
// Rule order is significant: the first rule triggered by a child state is the only
// one evaluated for that event.
type RuleSet struct {
	Type  string  `json:"type"`
	Rules []*Rule `json:"rules"`
}

// Rule describes when a child's state change should move its parent to another state
type Rule struct {
	// IfChildState lists the child states that select this rule
	IfChildState []string `json:"ifChildState"`

	// NotParentStates lists parent states that block the update
	NotParentStates []string `json:"notParentStates,omitempty"`

	// SetParentStateTo is the state the parent is moved to
	SetParentStateTo string `json:"setParentStateTo"`

	// AllChildren requires every sibling to be in one of IfChildState
	AllChildren bool `json:"allChildren"`

	// Condition is an optional CEL expression over child and parent that must
	// evaluate to true for the update to fire
	Condition string `json:"condition,omitempty"`

	condition *Condition
}

// Triggers reports whether a child moving to state selects this rule
func (r *Rule) Triggers(state string) bool {
	return slices.Contains(r.IfChildState, state)
}

// Excludes reports whether the parent's current state blocks this rule
func (r *Rule) Excludes(parentState string) bool {
	return slices.Contains(r.NotParentStates, parentState)
}

// Allows evaluates the rule's condition. Rules without a condition always allow.
func (r *Rule) Allows(input ConditionInput) (bool, error) {
	if r.condition == nil {
		return true, nil
	}
	return r.condition.Evaluate(input)
}

// Match returns the first rule triggered by state, or nil when no rule matches
func (rs *RuleSet) Match(state string) *Rule {
	for _, rule := range rs.Rules {
		if rule.Triggers(state) {
			return rule
		}
	}
	return nil
}

// DocumentKey is the storage key of the rule document for a work item type
func DocumentKey(workItemType string) string {
	return "rule." + strings.ToLower(workItemType) + ".json"
}

// ParseDocument decodes, validates and compiles a rule document.
// Field names are matched case-insensitively.
func ParseDocument(data []byte) (*RuleSet, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if err := ValidateRuleSet(&rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	for i, rule := range rs.Rules {
		if rule.Condition == "" {
			continue
		}
		cond, err := CompileCondition(rule.Condition)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidDocument, i, err)
		}
		rule.condition = cond
	}

	return &rs, nil
}
