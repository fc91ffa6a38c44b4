package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurePasswordAppendAndRead(t *testing.T) {
	p := NewSecurePassword()
	assert.Equal(t, 0, p.Length())

	p.Append('h')
	p.Append('i')
	assert.Equal(t, "hi", p.String())
	assert.Equal(t, 2, p.Length())
}

func TestSecurePasswordAppendRune(t *testing.T) {
	p := NewSecurePassword()
	p.AppendRune('p')
	p.AppendRune('ä')
	assert.Equal(t, "pä", p.String())
}

func TestSecurePasswordRemoveLast(t *testing.T) {
	p := NewSecurePassword()
	p.Append('a')
	p.Append('b')
	p.RemoveLast()
	assert.Equal(t, "a", p.String())

	p.RemoveLast()
	assert.Equal(t, "", p.String())

	// Removing from an empty buffer is a no-op.
	p.RemoveLast()
	assert.Equal(t, 0, p.Length())
}

func TestSecurePasswordClear(t *testing.T) {
	p := NewSecurePassword()
	p.Append('s')
	p.Append('3')
	p.Append('c')
	p.Clear()

	assert.Equal(t, 0, p.Length())
	assert.Equal(t, "", p.String())
}
