package propagation

import (
	"context"
	"errors"

	"github.com/liamcoop/propagation/event"
	"github.com/liamcoop/propagation/internal/logger"
	"github.com/liamcoop/propagation/rules"
	"github.com/liamcoop/propagation/workitem"
)

// Evaluator applies a rule set to one change event.
// It holds no state and is safe for concurrent use.
type Evaluator struct{}

// NewEvaluator creates an evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate fetches the child and its parent through repo, selects the first
// rule triggered by the event's new state and issues at most one parent
// update. Every failure is reported as an Outcome.
func (e *Evaluator) Evaluate(ctx context.Context, ev event.ChangeEvent, rs *rules.RuleSet, repo workitem.Repository) Outcome {
	log := logger.With("workItemId", ev.WorkItemID, "workItemType", ev.WorkItemType, "newState", ev.NewState)

	child, err := repo.GetByID(ctx, ev.WorkItemID)
	if err != nil {
		log.Warn("failed to fetch work item", "error", err)
		return parentNotFound()
	}

	if !child.HasParent() {
		return noParentRelation()
	}

	parent, err := repo.GetParent(ctx, child.ParentURL)
	if err != nil {
		if !errors.Is(err, workitem.ErrNotFound) && !errors.Is(err, workitem.ErrMalformedURL) {
			log.Warn("failed to fetch parent work item", "parentUrl", child.ParentURL, "error", err)
		}
		return parentNotFound()
	}
	log = log.With("parentId", parent.ID, "parentState", parent.State)

	rule := rs.Match(ev.NewState)
	if rule == nil {
		return noMatchingRule(parent.State)
	}

	if !rule.AllChildren && rule.Excludes(parent.State) {
		return parentExcluded(parent.State)
	}

	allowed, err := rule.Allows(rules.ConditionInput{
		ChildID:     child.ID,
		ChildType:   ev.WorkItemType,
		ChildState:  ev.NewState,
		ParentID:    parent.ID,
		ParentState: parent.State,
	})
	if err != nil {
		log.Warn("rule condition failed to evaluate", "error", err)
	}
	if !allowed {
		return conditionNotMet(parent.State)
	}

	if rule.AllChildren {
		siblings, err := repo.ListChildren(ctx, parent)
		if err != nil {
			log.Warn("failed to list child work items", "error", err)
			return siblingsUnavailable(parent.State)
		}

		pending := 0
		for _, sibling := range siblings {
			if !rule.Triggers(sibling.State) {
				pending++
			}
		}
		if pending > 0 {
			return siblingsNotReady(parent.State, pending)
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warn("evaluation cancelled before parent update", "error", err)
		return updateRejected(parent.State)
	}

	if _, err := repo.UpdateState(ctx, parent, rule.SetParentStateTo); err != nil {
		logger.WarnRejectedUpdate("parent update rejected",
			"workItemId", ev.WorkItemID,
			"parentId", parent.ID,
			"revision", parent.Revision,
			"targetState", rule.SetParentStateTo,
			"conflict", errors.Is(err, workitem.ErrRevisionConflict),
			"error", err,
		)
		return updateRejected(parent.State)
	}

	log.Info("parent state updated", "targetState", rule.SetParentStateTo)
	return ruleApplied(rule.SetParentStateTo)
}
