package ignition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingStep(name string, trail *[]string, fail bool) step {
	return step{
		name: name,
		do: func(context.Context) error {
			*trail = append(*trail, "do:"+name)
			if fail {
				return errors.New(name + " failed")
			}
			return nil
		},
		undo: func(context.Context) error {
			*trail = append(*trail, "undo:"+name)
			return nil
		},
	}
}

func TestRunSagaAllStepsSucceed(t *testing.T) {
	var trail []string
	steps := []step{
		recordingStep("a", &trail, false),
		recordingStep("b", &trail, false),
		recordingStep("c", &trail, false),
	}

	res := runSaga(context.Background(), steps, sagaHooks{})

	require.NoError(t, res.Err)
	assert.Equal(t, -1, res.FailedIndex)
	assert.False(t, res.RollbackPerformed)
	assert.Equal(t, []string{"do:a", "do:b", "do:c"}, trail)
}

func TestRunSagaUnwindsInReverseOrder(t *testing.T) {
	var trail []string
	steps := []step{
		recordingStep("a", &trail, false),
		recordingStep("b", &trail, false),
		recordingStep("c", &trail, true),
		recordingStep("d", &trail, false),
	}

	res := runSaga(context.Background(), steps, sagaHooks{})

	require.Error(t, res.Err)
	assert.Equal(t, 2, res.FailedIndex)
	assert.Equal(t, "c", res.FailedStep)
	assert.True(t, res.RollbackPerformed)
	// d never ran; the failed step's own undo runs too, since its forward
	// action may have left partial side effects behind.
	assert.Equal(t, []string{
		"do:a", "do:b", "do:c",
		"undo:c", "undo:b", "undo:a",
	}, trail)
}

func TestRunSagaSkipsNilUndos(t *testing.T) {
	var trail []string
	steps := []step{
		recordingStep("a", &trail, false),
		{
			name: "b",
			do: func(context.Context) error {
				trail = append(trail, "do:b")
				return errors.New("b failed")
			},
			undo: nil,
		},
	}

	res := runSaga(context.Background(), steps, sagaHooks{})

	require.Error(t, res.Err)
	assert.True(t, res.RollbackPerformed)
	assert.Equal(t, []string{"do:a", "do:b", "undo:a"}, trail)
}

func TestRunSagaNoRollbackWhenNothingToUndo(t *testing.T) {
	res := runSaga(context.Background(), []step{
		{
			name: "only",
			do:   func(context.Context) error { return errors.New("boom") },
			undo: nil,
		},
	}, sagaHooks{})

	require.Error(t, res.Err)
	assert.False(t, res.RollbackPerformed)
}

func TestRunSagaOnFailureRunsBeforeUndo(t *testing.T) {
	var trail []string
	steps := []step{
		recordingStep("a", &trail, false),
		recordingStep("b", &trail, true),
	}

	runSaga(context.Background(), steps, sagaHooks{
		onFailure: func(_ context.Context, s step, index int, err error) {
			trail = append(trail, "failure:"+s.name)
			assert.Equal(t, 1, index)
			assert.Error(t, err)
		},
	})

	assert.Equal(t, []string{
		"do:a", "do:b",
		"failure:b",
		"undo:b", "undo:a",
	}, trail)
}

func TestRunSagaUndoFailureDoesNotBlockRemaining(t *testing.T) {
	var trail []string
	var undoErrs []error

	steps := []step{
		recordingStep("a", &trail, false),
		{
			name: "b",
			do: func(context.Context) error {
				trail = append(trail, "do:b")
				return nil
			},
			undo: func(context.Context) error {
				trail = append(trail, "undo:b")
				return errors.New("undo b failed")
			},
		},
		recordingStep("c", &trail, true),
	}

	res := runSaga(context.Background(), steps, sagaHooks{
		onUndo: func(_ step, err error) {
			undoErrs = append(undoErrs, err)
		},
	})

	require.Error(t, res.Err)
	assert.Equal(t, "c failed", res.Err.Error())
	assert.Equal(t, []string{
		"do:a", "do:b", "do:c",
		"undo:c", "undo:b", "undo:a",
	}, trail)

	require.Len(t, undoErrs, 3)
	assert.NoError(t, undoErrs[0])
	assert.EqualError(t, undoErrs[1], "undo b failed")
	assert.NoError(t, undoErrs[2])
}

func TestRunSagaAfterStepSeesEachIndex(t *testing.T) {
	var indices []int
	var trail []string
	steps := []step{
		recordingStep("a", &trail, false),
		recordingStep("b", &trail, false),
	}

	runSaga(context.Background(), steps, sagaHooks{
		afterStep: func(_ context.Context, index int) {
			indices = append(indices, index)
		},
	})

	assert.Equal(t, []int{0, 1}, indices)
}
