package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_AutomaticFlow(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, LifecycleIdle, l.State())
	assert.Nil(t, l.Event())

	require.NoError(t, l.Raise(100))
	assert.Equal(t, LifecycleRaised, l.State())
	assert.True(t, l.EvaluationSuspended())

	token, err := l.ConfirmAutomatic()
	require.NoError(t, err)
	assert.Equal(t, LifecycleAwaitingConfirmation, l.State())

	ev, ok := l.Expire(token)
	require.True(t, ok)
	assert.Equal(t, SourceAutomatic, ev.Source)
	assert.Equal(t, 100.0, ev.RaisedAtElapsedSeconds)
	assert.Equal(t, LifecycleIdle, l.State())
	assert.False(t, l.EvaluationSuspended())
}

func TestLifecycle_UndoAutomaticReturnsToRaised(t *testing.T) {
	var l Lifecycle
	require.NoError(t, l.Raise(100))
	token, err := l.ConfirmAutomatic()
	require.NoError(t, err)

	source, err := l.Undo()
	require.NoError(t, err)
	assert.Equal(t, SourceAutomatic, source)
	assert.Equal(t, LifecycleRaised, l.State())
	require.NotNil(t, l.Event())

	_, ok := l.Expire(token)
	assert.False(t, ok, "undone countdown cannot finalize")
	assert.Equal(t, LifecycleRaised, l.State())
}

func TestLifecycle_UndoManualReturnsToIdle(t *testing.T) {
	var l Lifecycle
	token, err := l.ConfirmManual(42)
	require.NoError(t, err)

	source, err := l.Undo()
	require.NoError(t, err)
	assert.Equal(t, SourceManual, source)
	assert.Equal(t, LifecycleIdle, l.State())
	assert.Nil(t, l.Event())

	_, ok := l.Expire(token)
	assert.False(t, ok)
}

func TestLifecycle_LateUndoIsRejected(t *testing.T) {
	var l Lifecycle
	token, err := l.ConfirmManual(10)
	require.NoError(t, err)
	_, ok := l.Expire(token)
	require.True(t, ok)

	_, err = l.Undo()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, LifecycleIdle, l.State())
}

func TestLifecycle_ExpireOnlyOnce(t *testing.T) {
	var l Lifecycle
	token, err := l.ConfirmManual(10)
	require.NoError(t, err)

	_, ok := l.Expire(token)
	assert.True(t, ok)
	_, ok = l.Expire(token)
	assert.False(t, ok)
}

func TestLifecycle_SingleOutstandingEvent(t *testing.T) {
	var l Lifecycle
	require.NoError(t, l.Raise(100))

	assert.ErrorIs(t, l.Raise(101), ErrInvalidTransition)
	_, err := l.ConfirmManual(101)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = l.ConfirmAutomatic()
	require.NoError(t, err)
	_, err = l.ConfirmAutomatic()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.ConfirmManual(102)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycle_ConfirmAutomaticRequiresRaise(t *testing.T) {
	var l Lifecycle
	_, err := l.ConfirmAutomatic()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycle_ResetInvalidatesCountdown(t *testing.T) {
	var l Lifecycle
	token, err := l.ConfirmManual(5)
	require.NoError(t, err)

	l.Reset()
	assert.Equal(t, LifecycleIdle, l.State())
	_, ok := l.Expire(token)
	assert.False(t, ok)
}

func TestLifecycle_EventIsCopy(t *testing.T) {
	var l Lifecycle
	require.NoError(t, l.Raise(100))
	ev := l.Event()
	ev.RaisedAtElapsedSeconds = 999
	assert.Equal(t, 100.0, l.Event().RaisedAtElapsedSeconds)
}
