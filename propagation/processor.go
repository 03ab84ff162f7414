package propagation

import (
	"context"
	"errors"
	"time"

	"github.com/liamcoop/propagation/event"
	"github.com/liamcoop/propagation/internal/logger"
	"github.com/liamcoop/propagation/rules"
	"github.com/liamcoop/propagation/workitem"
)

// RuleSource resolves work item types to rule sets
type RuleSource interface {
	Exists(ctx context.Context, workItemType string) (bool, error)
	Resolve(ctx context.Context, workItemType string) (*rules.RuleSet, error)
}

// RepositoryProvider returns the repository for an organization
type RepositoryProvider interface {
	Repository(ctx context.Context, organization string) (workitem.Repository, error)
}

// Recorder observes processed deliveries
type Recorder interface {
	ObserveOutcome(outcome string, elapsed time.Duration)
}

// Processor runs one change event through rule lookup and evaluation
type Processor struct {
	rules        RuleSource
	repositories RepositoryProvider
	evaluator    *Evaluator
	recorder     Recorder
}

// NewProcessor creates a processor. recorder may be nil.
func NewProcessor(source RuleSource, repositories RepositoryProvider, recorder Recorder) *Processor {
	return &Processor{
		rules:        source,
		repositories: repositories,
		evaluator:    NewEvaluator(),
		recorder:     recorder,
	}
}

// Process handles one change event. Rules are resolved before any work item
// is fetched, so a type without rules costs no calls to the tracking service.
func (p *Processor) Process(ctx context.Context, deliveryID string, ev event.ChangeEvent) Outcome {
	start := time.Now()
	out := p.process(ctx, ev)

	if p.recorder != nil {
		p.recorder.ObserveOutcome(out.Kind.String(), time.Since(start))
	}

	logger.Info("delivery processed",
		"deliveryId", deliveryID,
		"organization", ev.Organization,
		"workItemId", ev.WorkItemID,
		"workItemType", ev.WorkItemType,
		"newState", ev.NewState,
		"outcome", out.Kind.String(),
		"parentState", out.ParentState,
		"duration", time.Since(start).String(),
	)
	return out
}

func (p *Processor) process(ctx context.Context, ev event.ChangeEvent) Outcome {
	if !ev.StateChanged {
		return noStateChange()
	}

	exists, err := p.rules.Exists(ctx, ev.WorkItemType)
	if err != nil {
		logger.Warn("failed to check rule document", "workItemType", ev.WorkItemType, "error", err)
		return noRuleForType(ev.WorkItemType)
	}
	if !exists {
		return noRuleForType(ev.WorkItemType)
	}

	rs, err := p.rules.Resolve(ctx, ev.WorkItemType)
	if err != nil {
		switch {
		case errors.Is(err, rules.ErrInvalidDocument):
			logger.ErrorCorruptRules("rule document is corrupt", "workItemType", ev.WorkItemType, "error", err)
		case !errors.Is(err, rules.ErrNoRules):
			logger.Error("failed to load rule document", "workItemType", ev.WorkItemType, "error", err)
		}
		return noRuleForType(ev.WorkItemType)
	}

	repo, err := p.repositories.Repository(ctx, ev.Organization)
	if err != nil {
		logger.Warn("no repository for organization", "organization", ev.Organization, "error", err)
		return parentNotFound()
	}

	return p.evaluator.Evaluate(ctx, ev, rs, repo)
}
