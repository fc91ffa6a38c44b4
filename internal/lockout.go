package internal

import (
	"fmt"
	"time"
)

// LockoutManager handles authentication failures and lockout periods
type LockoutManager struct {
	strikes      int       // failures since the last lockout
	lockoutCount int       // how many lockouts have been served
	lockoutUntil time.Time // time until which input is locked out
	active       bool      // whether a lockout is currently active
	threshold    int
	baseCooldown time.Duration
	now          func() time.Time
}

// NewLockoutManager creates a new lockout manager with the given configuration
func NewLockoutManager(config Configuration) *LockoutManager {
	return &LockoutManager{
		threshold:    config.LockoutThreshold,
		baseCooldown: time.Duration(config.LockoutBaseSeconds) * time.Second,
		now:          time.Now,
	}
}

// HandleFailedAttempt processes a failed authentication. It returns
// whether a lockout just engaged and for how long.
func (lm *LockoutManager) HandleFailedAttempt() (bool, time.Duration) {
	lm.strikes++
	Info("Authentication failed (%d/%d attempts)", lm.strikes, lm.threshold)

	if lm.strikes < lm.threshold {
		return false, 0
	}

	// Escalate the cooldown on repeat lockouts, capped at 10 minutes.
	duration := lm.baseCooldown * time.Duration(lm.lockoutCount+1)
	if duration > 10*time.Minute {
		duration = 10 * time.Minute
	}

	lm.lockoutUntil = lm.now().Add(duration)
	lm.active = true
	lm.lockoutCount++
	lm.strikes = 0

	Info("Failed %d attempts, locking out for %v", lm.threshold, duration)
	return true, duration
}

// IsLockedOut checks if authentication is currently locked out
func (lm *LockoutManager) IsLockedOut() bool {
	if !lm.active {
		return false
	}
	if lm.now().Before(lm.lockoutUntil) {
		return true
	}

	Info("Lockout period has expired, clearing lockout state")
	lm.active = false
	return false
}

// RemainingTime returns how much time is left in the lockout
func (lm *LockoutManager) RemainingTime() time.Duration {
	if !lm.active {
		return 0
	}
	remaining := lm.lockoutUntil.Sub(lm.now())
	if remaining < 0 {
		remaining = 0
		lm.active = false
	}
	return remaining
}

// FormatRemainingTime returns the remaining lockout time as mm:ss
func (lm *LockoutManager) FormatRemainingTime() string {
	remaining := lm.RemainingTime()
	minutes := int(remaining.Minutes())
	seconds := int(remaining.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Reset clears the lockout state after a successful authentication
func (lm *LockoutManager) Reset() {
	lm.strikes = 0
	lm.lockoutCount = 0
	lm.active = false
}
