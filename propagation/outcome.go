// Package propagation decides whether a child work item's state change moves
// its parent to a new state, and applies that change.
package propagation

import "fmt"

// Kind classifies the result of processing one change event
type Kind int

const (
	// RuleApplied means the parent was updated
	RuleApplied Kind = iota
	// NoRuleForType means no usable rule document exists for the child's type
	NoRuleForType
	// NoMatchingRule means no rule is triggered by the child's new state
	NoMatchingRule
	// NoParentRelation means the child has no parent
	NoParentRelation
	// ParentNotFound means the child or its parent could not be fetched
	ParentNotFound
	// ParentExcluded means the matched rule is blocked by the parent's state
	ParentExcluded
	// SiblingsNotReady means not every sibling is in a trigger state yet
	SiblingsNotReady
	// NoStateChange means the event did not change the child's state
	NoStateChange
	// ConditionNotMet means the matched rule's condition evaluated to false
	ConditionNotMet
	// SiblingsUnavailable means the parent's children could not be listed
	SiblingsUnavailable
	// UpdateRejected means the parent update failed, usually on a revision conflict
	UpdateRejected
)

var kindNames = map[Kind]string{
	RuleApplied:         "RuleApplied",
	NoRuleForType:       "NoRuleForType",
	NoMatchingRule:      "NoMatchingRule",
	NoParentRelation:    "NoParentRelation",
	ParentNotFound:      "ParentNotFound",
	ParentExcluded:      "ParentExcluded",
	SiblingsNotReady:    "SiblingsNotReady",
	NoStateChange:       "NoStateChange",
	ConditionNotMet:     "ConditionNotMet",
	SiblingsUnavailable: "SiblingsUnavailable",
	UpdateRejected:      "UpdateRejected",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the result of processing one change event.
// ParentState is the new parent state for RuleApplied and the parent's
// current state otherwise, when it was read.
type Outcome struct {
	Kind        Kind
	ParentState string
	Message     string
}

// Applied reports whether the parent was updated
func (o Outcome) Applied() bool {
	return o.Kind == RuleApplied
}

func (o Outcome) String() string {
	return o.Kind.String() + ": " + o.Message
}

func outcome(kind Kind, parentState, message string) Outcome {
	return Outcome{Kind: kind, ParentState: parentState, Message: message}
}

func ruleApplied(newState string) Outcome {
	return outcome(RuleApplied, newState, "Rule was applied for the item.")
}

func noRuleForType(workItemType string) Outcome {
	return outcome(NoRuleForType, "", fmt.Sprintf("No rule are found for the type %s.", workItemType))
}

func noMatchingRule(parentState string) Outcome {
	return outcome(NoMatchingRule, parentState, "No rule was applied for this change.")
}

func noParentRelation() Outcome {
	return outcome(NoParentRelation, "", "No parent relation could be found.")
}

func parentNotFound() Outcome {
	return outcome(ParentNotFound, "", "Parent work item couldn't be found.")
}

func parentExcluded(parentState string) Outcome {
	return outcome(ParentExcluded, parentState, fmt.Sprintf("Parent state %q is excluded by the matching rule.", parentState))
}

func siblingsNotReady(parentState string, pending int) Outcome {
	return outcome(SiblingsNotReady, parentState, fmt.Sprintf("%d child work item(s) are not in a triggering state yet.", pending))
}

func noStateChange() Outcome {
	return outcome(NoStateChange, "", "The update did not change the work item state.")
}

func conditionNotMet(parentState string) Outcome {
	return outcome(ConditionNotMet, parentState, "The condition of the matching rule was not met.")
}

func siblingsUnavailable(parentState string) Outcome {
	return outcome(SiblingsUnavailable, parentState, "Child work items of the parent couldn't be listed.")
}

func updateRejected(parentState string) Outcome {
	return outcome(UpdateRejected, parentState, "The parent work item update was rejected.")
}
