package internal

import (
	"fmt"
	"image/color"
	"strconv"
)

// AuthState tracks where the authentication collaborator currently is.
// It is set exclusively by the authentication path and read-only to the
// rendering core.
type AuthState int

const (
	AuthIdle AuthState = iota
	AuthVerify
	AuthLock
	AuthWrong
	AuthLockFailed
)

func (s AuthState) String() string {
	switch s {
	case AuthIdle:
		return "idle"
	case AuthVerify:
		return "verify"
	case AuthLock:
		return "lock"
	case AuthWrong:
		return "wrong"
	case AuthLockFailed:
		return "lock-failed"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// InputState tracks what the password buffer last did.
type InputState int

const (
	// InputStarted means nothing has been typed yet; the indicator stays hidden.
	InputStarted InputState = iota
	// InputNothingToDelete means backspace was pressed on an empty buffer.
	InputNothingToDelete
	// InputKeyPressed means the buffer has content and the indicator is idle.
	InputKeyPressed
	// InputKeyActive means a character was just accepted.
	InputKeyActive
	// InputBackspaceActive means a backspace was just accepted.
	InputBackspaceActive
)

func (s InputState) String() string {
	switch s {
	case InputStarted:
		return "started"
	case InputNothingToDelete:
		return "nothing-to-delete"
	case InputKeyPressed:
		return "key-pressed"
	case InputKeyActive:
		return "key-active"
	case InputBackspaceActive:
		return "backspace-active"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// RenderState holds everything the rendering pipeline reads: the current
// auth/input state and the auxiliary display counters. The pipeline is
// pure with respect to everything except this one struct.
type RenderState struct {
	Auth  AuthState
	Input InputState

	// FailedAttempts is display-only; values above 999 are rendered as a
	// fixed overflow marker.
	FailedAttempts int

	// ModifierLabel is shown below the status text while Auth == AuthWrong.
	ModifierLabel string

	// bufferedLen mirrors the current password buffer length so
	// ClearIndicator can decide between InputStarted and InputKeyPressed.
	bufferedLen int
}

// SetAuthState updates the authentication state.
func (s *RenderState) SetAuthState(a AuthState) { s.Auth = a }

// SetInputState updates the input state.
func (s *RenderState) SetInputState(i InputState) { s.Input = i }

// SetFailedAttempts updates the failed attempt counter. Negative values
// clamp to zero.
func (s *RenderState) SetFailedAttempts(n int) {
	if n < 0 {
		n = 0
	}
	s.FailedAttempts = n
}

// SetModifierLabel updates the modifier line; an empty string hides it.
func (s *RenderState) SetModifierLabel(label string) { s.ModifierLabel = label }

// SetBufferedLength records how many characters the password buffer holds.
func (s *RenderState) SetBufferedLength(n int) {
	if n < 0 {
		n = 0
	}
	s.bufferedLen = n
}

// showRing reports whether the unlock indicator is drawn at all. This is
// the only place the visibility rule lives.
func (s *RenderState) showRing() bool {
	return s.Input != InputStarted || s.Auth != AuthIdle
}

// highlightActive reports whether a keypress highlight arc is due.
func (s *RenderState) highlightActive() bool {
	return s.Input == InputKeyActive || s.Input == InputBackspaceActive
}

const (
	failedAttemptsCap      = 999
	failedAttemptsOverflow = "> 999"
)

// formatFailedAttempts renders the failed-attempt counter for display.
// We never show more than a 3-digit number.
func formatFailedAttempts(n int) string {
	if n <= 0 {
		return ""
	}
	if n > failedAttemptsCap {
		return failedAttemptsOverflow
	}
	return strconv.Itoa(n)
}

// ringColor maps the current state to the ring stroke color. The mapping
// is total over AuthState: an enum value without an entry is a
// programming error and is reported instead of silently defaulting.
func ringColor(auth AuthState, input InputState) (color.RGBA, error) {
	switch auth {
	case AuthVerify, AuthLock:
		return nord10, nil
	case AuthWrong, AuthLockFailed:
		return nord11, nil
	case AuthIdle:
		if input == InputNothingToDelete {
			return nord12, nil
		}
		return nord3, nil
	}
	return color.RGBA{}, fmt.Errorf("no ring color mapped for auth state %d", int(auth))
}

// statusText selects the centered status line and its color. Precedence
// is fixed: auth state text beats "No input", which beats the
// failed-attempt counter. The counter is always drawn red.
func statusText(auth AuthState, input InputState, attempts int, showAttempts bool) (string, color.RGBA, error) {
	switch auth {
	case AuthVerify:
		return "Verifying…", nord9, nil
	case AuthLock:
		return "Locking…", nord9, nil
	case AuthWrong:
		return "Wrong!", nord11, nil
	case AuthLockFailed:
		return "Lock failed!", nord11, nil
	case AuthIdle:
		if input == InputNothingToDelete {
			return "No input", nord12, nil
		}
		if showAttempts && attempts > 0 {
			return formatFailedAttempts(attempts), nord11, nil
		}
		return "", nord4, nil
	}
	return "", color.RGBA{}, fmt.Errorf("no status text mapped for auth state %d", int(auth))
}
