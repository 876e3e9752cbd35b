package ignition

import "context"

// step is one named unit of the ignition saga: a forward action and an
// optional compensating action. Undo functions must be idempotent and must
// no-op internally when the forward action left nothing behind, so the
// runner can invoke them without tracking partial completion per step.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// sagaHooks lets the orchestrator attach persistence, retry and audit
// behavior to the runner without duplicating the compensation logic.
type sagaHooks struct {
	// exec runs a step's forward action. When nil the step's do function
	// is called directly. The orchestrator wraps retry and telemetry here.
	exec func(ctx context.Context, s step) error

	// afterStep runs after a step's forward action succeeds, before the
	// next step starts. The orchestrator persists state here.
	afterStep func(ctx context.Context, index int)

	// onFailure runs after a forward action fails, before any compensating
	// action. The orchestrator persists the failed state here so the
	// failure reason is durable even if compensation is interrupted.
	onFailure func(ctx context.Context, s step, index int, err error)

	// onUndo observes the outcome of each compensating action.
	onUndo func(s step, err error)
}

// sagaResult reports how a saga run ended.
type sagaResult struct {
	// FailedIndex is the index of the step whose forward action failed,
	// or -1 when every step succeeded.
	FailedIndex int

	// FailedStep is the name of the failed step, empty on success.
	FailedStep string

	// Err is the primary failure. Undo errors never overwrite it.
	Err error

	// RollbackPerformed is true when at least one compensating action ran,
	// regardless of whether every one of them succeeded.
	RollbackPerformed bool
}

// runSaga executes the steps strictly in order. On the first forward
// failure it invokes the undo action of every step with index <= the failed
// index that has one, in strict reverse order, then stops. Compensation
// failures are reported through hooks.onUndo and do not block the remaining
// undo steps.
func runSaga(ctx context.Context, steps []step, hooks sagaHooks) sagaResult {
	exec := hooks.exec
	if exec == nil {
		exec = func(ctx context.Context, s step) error { return s.do(ctx) }
	}

	for i, s := range steps {
		if err := exec(ctx, s); err != nil {
			if hooks.onFailure != nil {
				hooks.onFailure(ctx, s, i, err)
			}
			rolledBack := unwind(ctx, steps[:i+1], hooks.onUndo)
			return sagaResult{
				FailedIndex:       i,
				FailedStep:        s.name,
				Err:               err,
				RollbackPerformed: rolledBack,
			}
		}
		if hooks.afterStep != nil {
			hooks.afterStep(ctx, i)
		}
	}

	return sagaResult{FailedIndex: -1}
}

// unwind runs the undo actions of the given steps in reverse order and
// returns true if at least one ran. Each undo failure is surfaced through
// onUndo and swallowed so that the remaining compensations still execute.
func unwind(ctx context.Context, steps []step, onUndo func(s step, err error)) bool {
	ran := false
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.undo == nil {
			continue
		}
		ran = true
		err := s.undo(ctx)
		if onUndo != nil {
			onUndo(s, err)
		}
	}
	return ran
}
