package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionLifecycle(t *testing.T) {
	a := NewAction("search_cities", map[string]any{"interests": []any{"美食"}})
	assert.Equal(t, ActionPending, a.Status)
	assert.False(t, a.Terminal())

	now := time.Now()
	require.NoError(t, a.Start(now))
	assert.Equal(t, ActionRunning, a.Status)

	require.NoError(t, a.Finish(ActionSuccess, now.Add(10*time.Millisecond)))
	assert.Equal(t, ActionSuccess, a.Status)
	assert.Equal(t, 10*time.Millisecond, a.Duration)
	assert.True(t, a.Terminal())
}

func TestActionInvalidTransitions(t *testing.T) {
	a := NewAction("x", nil)

	// Cannot finish before running.
	assert.Error(t, a.Finish(ActionSuccess, time.Now()))

	require.NoError(t, a.Start(time.Now()))
	// Cannot start twice.
	assert.Error(t, a.Start(time.Now()))
	// Cannot skip once running.
	assert.Error(t, a.Skip("late"))
	// SKIPPED is not a valid terminal for a running action.
	assert.Error(t, a.Finish(ActionSkipped, time.Now()))

	require.NoError(t, a.Finish(ActionTimeout, time.Now()))
	// Terminal states are final.
	assert.Error(t, a.Finish(ActionFailed, time.Now()))
}

func TestActionSkipFromPendingOnly(t *testing.T) {
	a := NewAction("x", nil)
	require.NoError(t, a.Skip("duplicate"))
	assert.Equal(t, ActionSkipped, a.Status)
	assert.Equal(t, "duplicate", a.Error)
	assert.True(t, a.Terminal())

	assert.Error(t, a.Start(time.Now()), "skipped actions never run")
}

func TestDecisionEmpty(t *testing.T) {
	var d *Decision
	assert.True(t, d.Empty())
	assert.True(t, (&Decision{Intent: IntentGeneralChat}).Empty())
	assert.False(t, (&Decision{Steps: []PlannedStep{{Tool: "x"}}}).Empty())
	assert.False(t, (&Decision{Ready: true}).Empty())
}

func TestEvaluate(t *testing.T) {
	a := NewAction("x", nil)
	require.NoError(t, a.Start(time.Now()))
	a.Result = map[string]any{"success": true}
	require.NoError(t, a.Finish(ActionSuccess, time.Now()))

	e := Evaluate(a)
	assert.True(t, e.Success)
	assert.True(t, e.HasResult)
	assert.Equal(t, confidenceGain, e.ConfidenceDelta)

	// Success status without result is not a success.
	b := NewAction("y", nil)
	require.NoError(t, b.Start(time.Now()))
	require.NoError(t, b.Finish(ActionSuccess, time.Now()))
	eb := Evaluate(b)
	assert.False(t, eb.Success)
	assert.Equal(t, -confidenceLoss, eb.ConfidenceDelta)

	// Skipped actions move confidence nowhere.
	c := NewAction("z", nil)
	require.NoError(t, c.Skip("dup"))
	assert.Zero(t, Evaluate(c).ConfidenceDelta)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, clampConfidence(-0.2))
	assert.Equal(t, 1.0, clampConfidence(1.7))
	assert.Equal(t, 0.5, clampConfidence(0.5))
}
