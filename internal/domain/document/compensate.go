package document

import (
	"context"

	appctx "tallybook/internal/core/context"
	"tallybook/pkg/logger"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// undo collects compensating actions and runs them newest first.
type undo struct {
	steps []undoStep
}

func (u *undo) push(name string, fn func(ctx context.Context) error) {
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

// run executes every step on a detached context so a cancelled request still rolls back.
// Failures are logged and do not stop the remaining steps.
func (u *undo) run(ctx context.Context, cause error) {
	ctx = appctx.Detached(ctx)
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.fn(ctx); err != nil {
			logger.Error(ctx, "compensation failed",
				"step", step.name,
				"cause", cause,
				"error", err,
			)
		}
	}
	u.steps = nil
}
