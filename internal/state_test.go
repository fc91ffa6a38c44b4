package internal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allAuthStates() []AuthState {
	return []AuthState{AuthIdle, AuthVerify, AuthLock, AuthWrong, AuthLockFailed}
}

func allInputStates() []InputState {
	return []InputState{InputStarted, InputNothingToDelete, InputKeyPressed, InputKeyActive, InputBackspaceActive}
}

func TestRingColorMapping(t *testing.T) {
	tests := []struct {
		auth  AuthState
		input InputState
		want  [3]uint8
	}{
		{AuthVerify, InputKeyPressed, [3]uint8{0x5e, 0x81, 0xac}},
		{AuthLock, InputStarted, [3]uint8{0x5e, 0x81, 0xac}},
		{AuthWrong, InputKeyPressed, [3]uint8{0xbf, 0x61, 0x6a}},
		{AuthLockFailed, InputStarted, [3]uint8{0xbf, 0x61, 0x6a}},
		{AuthIdle, InputNothingToDelete, [3]uint8{0xd0, 0x87, 0x70}},
		{AuthIdle, InputKeyPressed, [3]uint8{0x4c, 0x56, 0x6a}},
		{AuthIdle, InputKeyActive, [3]uint8{0x4c, 0x56, 0x6a}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v_%v", tt.auth, tt.input), func(t *testing.T) {
			got, err := ringColor(tt.auth, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, [3]uint8{got.R, got.G, got.B})
		})
	}
}

func TestRingColorTotalOverEnum(t *testing.T) {
	for _, auth := range allAuthStates() {
		for _, input := range allInputStates() {
			_, err := ringColor(auth, input)
			assert.NoError(t, err, "auth=%v input=%v", auth, input)
		}
	}
}

func TestRingColorRejectsUnknownState(t *testing.T) {
	_, err := ringColor(AuthState(99), InputKeyPressed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ring color")
}

func TestStatusTextAuthStates(t *testing.T) {
	tests := []struct {
		auth AuthState
		text string
		col  [3]uint8
	}{
		{AuthVerify, "Verifying…", [3]uint8{0x81, 0xa1, 0xc1}},
		{AuthLock, "Locking…", [3]uint8{0x81, 0xa1, 0xc1}},
		{AuthWrong, "Wrong!", [3]uint8{0xbf, 0x61, 0x6a}},
		{AuthLockFailed, "Lock failed!", [3]uint8{0xbf, 0x61, 0x6a}},
	}

	for _, tt := range tests {
		t.Run(tt.auth.String(), func(t *testing.T) {
			// Auth state text wins even when the counter is displayable.
			text, col, err := statusText(tt.auth, InputKeyPressed, 5, true)
			require.NoError(t, err)
			assert.Equal(t, tt.text, text)
			assert.Equal(t, tt.col, [3]uint8{col.R, col.G, col.B})
		})
	}
}

func TestStatusTextNoInputBeatsCounter(t *testing.T) {
	text, col, err := statusText(AuthIdle, InputNothingToDelete, 7, true)
	require.NoError(t, err)
	assert.Equal(t, "No input", text)
	assert.Equal(t, nord12, col)
}

func TestStatusTextCounter(t *testing.T) {
	text, col, err := statusText(AuthIdle, InputKeyPressed, 7, true)
	require.NoError(t, err)
	assert.Equal(t, "7", text)
	assert.Equal(t, nord11, col, "counter is always red")

	text, _, err = statusText(AuthIdle, InputKeyPressed, 7, false)
	require.NoError(t, err)
	assert.Empty(t, text, "counter hidden when not requested")

	text, _, err = statusText(AuthIdle, InputKeyPressed, 0, true)
	require.NoError(t, err)
	assert.Empty(t, text, "zero attempts show nothing")
}

func TestStatusTextTotalOverEnum(t *testing.T) {
	for _, auth := range allAuthStates() {
		for _, input := range allInputStates() {
			_, _, err := statusText(auth, input, 1, true)
			assert.NoError(t, err, "auth=%v input=%v", auth, input)
		}
	}
}

func TestStatusTextRejectsUnknownState(t *testing.T) {
	_, _, err := statusText(AuthState(42), InputStarted, 0, false)
	require.Error(t, err)
}

func TestFormatFailedAttempts(t *testing.T) {
	assert.Equal(t, "", formatFailedAttempts(0))
	assert.Equal(t, "", formatFailedAttempts(-3))
	assert.Equal(t, "1", formatFailedAttempts(1))
	assert.Equal(t, "999", formatFailedAttempts(999))
	assert.Equal(t, "> 999", formatFailedAttempts(1000))
	assert.Equal(t, "> 999", formatFailedAttempts(123456))
}

func TestShowRing(t *testing.T) {
	for _, auth := range allAuthStates() {
		for _, input := range allInputStates() {
			st := RenderState{Auth: auth, Input: input}
			want := input != InputStarted || auth != AuthIdle
			assert.Equal(t, want, st.showRing(), "auth=%v input=%v", auth, input)
		}
	}
}

func TestHighlightActive(t *testing.T) {
	st := RenderState{}

	st.SetInputState(InputKeyActive)
	assert.True(t, st.highlightActive())

	st.SetInputState(InputBackspaceActive)
	assert.True(t, st.highlightActive())

	st.SetInputState(InputKeyPressed)
	assert.False(t, st.highlightActive())

	st.SetInputState(InputNothingToDelete)
	assert.False(t, st.highlightActive())
}

func TestRenderStateSettersClamp(t *testing.T) {
	st := RenderState{}

	st.SetFailedAttempts(-1)
	assert.Equal(t, 0, st.FailedAttempts)

	st.SetBufferedLength(-5)
	assert.Equal(t, 0, st.bufferedLen)
}
