package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_InitialState(t *testing.T) {
	b := New("notifications")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "notifications", b.Name())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("notifications", WithFailureThreshold(3))

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	// Third consecutive failure trips the breaker.
	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b := New("notifications", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen(), "streak was reset, two failures must not open")

	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	b := New("notifications", WithFailureThreshold(1), WithSuccessThreshold(2))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreaker_FailureWhileOpenResetsSuccessStreak(t *testing.T) {
	b := New("notifications", WithFailureThreshold(1), WithSuccessThreshold(3))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()

	b.RecordSuccess()
	b.RecordSuccess()
	assert.True(t, b.IsOpen(), "success streak was reset by the failure")
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
}

func TestBreaker_FailureWhileOpenReportsNoTransition(t *testing.T) {
	b := New("notifications", WithFailureThreshold(1))

	b.RecordFailure()

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open, no new transition")
}

func TestBreaker_Reset(t *testing.T) {
	b := New("notifications", WithFailureThreshold(1))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
}
