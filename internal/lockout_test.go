package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLockoutManager(threshold, baseSeconds int) (*LockoutManager, *time.Time) {
	cfg := DefaultConfig()
	cfg.LockoutThreshold = threshold
	cfg.LockoutBaseSeconds = baseSeconds

	now := time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)
	lm := NewLockoutManager(cfg)
	lm.now = func() time.Time { return now }
	return lm, &now
}

func TestLockoutEngagesAtThreshold(t *testing.T) {
	lm, _ := testLockoutManager(3, 30)

	engaged, _ := lm.HandleFailedAttempt()
	assert.False(t, engaged)
	engaged, _ = lm.HandleFailedAttempt()
	assert.False(t, engaged)
	assert.False(t, lm.IsLockedOut())

	engaged, duration := lm.HandleFailedAttempt()
	assert.True(t, engaged)
	assert.Equal(t, 30*time.Second, duration)
	assert.True(t, lm.IsLockedOut())
}

func TestLockoutExpires(t *testing.T) {
	lm, now := testLockoutManager(1, 30)

	engaged, _ := lm.HandleFailedAttempt()
	require.True(t, engaged)
	require.True(t, lm.IsLockedOut())

	*now = now.Add(31 * time.Second)
	assert.False(t, lm.IsLockedOut())
}

func TestLockoutEscalates(t *testing.T) {
	lm, now := testLockoutManager(1, 30)

	_, first := lm.HandleFailedAttempt()
	assert.Equal(t, 30*time.Second, first)

	*now = now.Add(time.Minute)
	_, second := lm.HandleFailedAttempt()
	assert.Equal(t, 60*time.Second, second)

	*now = now.Add(2 * time.Minute)
	_, third := lm.HandleFailedAttempt()
	assert.Equal(t, 90*time.Second, third)
}

func TestLockoutCapped(t *testing.T) {
	lm, now := testLockoutManager(1, 300)

	for i := 0; i < 5; i++ {
		_, duration := lm.HandleFailedAttempt()
		assert.LessOrEqual(t, duration, 10*time.Minute)
		*now = now.Add(11 * time.Minute)
	}
}

func TestLockoutRemainingTime(t *testing.T) {
	lm, now := testLockoutManager(1, 90)

	lm.HandleFailedAttempt()
	assert.Equal(t, 90*time.Second, lm.RemainingTime())
	assert.Equal(t, "01:30", lm.FormatRemainingTime())

	*now = now.Add(55 * time.Second)
	assert.Equal(t, "00:35", lm.FormatRemainingTime())

	*now = now.Add(time.Minute)
	assert.Equal(t, time.Duration(0), lm.RemainingTime())
	assert.Equal(t, "00:00", lm.FormatRemainingTime())
}

func TestLockoutReset(t *testing.T) {
	lm, _ := testLockoutManager(2, 30)

	lm.HandleFailedAttempt()
	lm.HandleFailedAttempt()
	require.True(t, lm.IsLockedOut())

	lm.Reset()
	assert.False(t, lm.IsLockedOut())

	// Counting starts over after a reset.
	engaged, _ := lm.HandleFailedAttempt()
	assert.False(t, engaged)
}
