package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/logging"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/pkg/schema"
)

// Indexer collects the triggers of workflow definitions.
type Indexer struct {
	clock     clock.Clock
	evaluator engine.Evaluator
	logger    *slog.Logger
}

// NewIndexer creates an indexer. Trigger times are computed from clk.
func NewIndexer(clk clock.Clock, ev engine.Evaluator, logger *slog.Logger) *Indexer {
	if clk == nil {
		clk = clock.System{}
	}
	return &Indexer{clock: clk, evaluator: ev, logger: logging.OrDefault(logger)}
}

// Index walks wf and returns one trigger per payload of every generator that
// can start the workflow. Indexing again recomputes every payload from the
// current clock.
func (x *Indexer) Index(ctx context.Context, wf *engine.Workflow) ([]*store.Trigger, error) {
	var (
		triggers []*store.Trigger
		failure  error
	)
	now := x.clock.Now()
	wf.Walk(func(a, _ engine.Activity) bool {
		gen, ok := a.(EventGenerator)
		if !ok || !gen.CanStartWorkflow() {
			return true
		}
		tc := NewContext(ctx, wf, a, x.clock, x.evaluator)
		for payload, err := range gen.TriggerData(tc) {
			if err != nil {
				failure = schema.NewErrorf(schema.ErrCodeValidation, "trigger data of %q: %s", a.ID(), err.Error()).
					WithActivity(a.ID()).WithCause(err)
				return false
			}
			t, err := newTrigger(wf.ID, a, payload, now)
			if err != nil {
				failure = err
				return false
			}
			triggers = append(triggers, t)
		}
		return true
	})
	if failure != nil {
		return nil, failure
	}
	logging.LogWith(ctx, x.logger).Debug("workflow indexed", "workflow_id", wf.ID, "triggers", len(triggers))
	return triggers, nil
}

func newTrigger(workflowID string, a engine.Activity, payload any, now time.Time) (*store.Trigger, error) {
	hash, err := engine.Hash(a.Type(), payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode trigger payload of %q: %s", a.ID(), err.Error()).WithCause(err)
	}
	return &store.Trigger{
		ID:               uuid.New().String(),
		WorkflowID:       workflowID,
		ActivityID:       a.ID(),
		ActivityTypeName: a.Type(),
		Hash:             hash,
		Payload:          raw,
		CreatedAt:        now,
	}, nil
}
