package submit_test

import (
	"errors"
	"testing"

	"github.com/nikolayk812/checkoutflow/internal/submit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_FailThenRetry(t *testing.T) {
	var tr submit.Tracker

	assert.Equal(t, submit.StatusIdle, tr.Status())
	assert.True(t, tr.Enabled())

	require.NoError(t, tr.Begin())
	assert.Equal(t, submit.StatusPending, tr.Status())
	assert.False(t, tr.Enabled())

	require.ErrorIs(t, tr.Begin(), submit.ErrInFlight)

	boom := errors.New("card declined")
	tr.Finish(boom)
	assert.Equal(t, submit.StatusFailed, tr.Status())
	assert.Equal(t, boom, tr.LastError())

	tr.Reset()
	assert.Equal(t, submit.StatusIdle, tr.Status())
	assert.Equal(t, boom, tr.LastError())

	require.NoError(t, tr.Begin())
	assert.Nil(t, tr.LastError())

	tr.Finish(nil)
	assert.Equal(t, submit.StatusSucceeded, tr.Status())
}

func TestTracker_ResetOnlyAfterFailure(t *testing.T) {
	var tr submit.Tracker

	require.NoError(t, tr.Begin())
	tr.Reset()
	assert.Equal(t, submit.StatusPending, tr.Status())
}
