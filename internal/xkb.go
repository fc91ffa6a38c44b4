package internal

import (
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
)

const (
	xkbKeymapFormatTextV1 = 1
	xkbContextNoFlags     = 0
)

var (
	xkbOnce sync.Once
	xkbErr  error

	xkbContextNew          func(uint32) uintptr
	xkbKeymapNewFromString func(uintptr, []byte, uint32, uint32) uintptr
	xkbStateNew            func(uintptr) uintptr
	xkbStateKeyGetOneSym   func(uintptr, uint) uintptr
	xkbKeysymToUtf32       func(uint) uint
	xkbKeymapUnref         func(uintptr)
	xkbStateUnref          func(uintptr)
	xkbContextUnref        func(uintptr)
)

// loadXkb binds libxkbcommon on first use. The library is optional; the
// Wayland key handler falls back to a builtin keycode table without it.
func loadXkb() error {
	xkbOnce.Do(func() {
		lib, err := purego.Dlopen("libxkbcommon.so", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lib, err = purego.Dlopen("libxkbcommon.so.0", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		}
		if err != nil {
			xkbErr = fmt.Errorf("failed to load libxkbcommon: %v", err)
			return
		}

		purego.RegisterLibFunc(&xkbContextNew, lib, "xkb_context_new")
		purego.RegisterLibFunc(&xkbKeymapNewFromString, lib, "xkb_keymap_new_from_string")
		purego.RegisterLibFunc(&xkbStateNew, lib, "xkb_state_new")
		purego.RegisterLibFunc(&xkbStateKeyGetOneSym, lib, "xkb_state_key_get_one_sym")
		purego.RegisterLibFunc(&xkbKeysymToUtf32, lib, "xkb_keysym_to_utf32")
		purego.RegisterLibFunc(&xkbKeymapUnref, lib, "xkb_keymap_unref")
		purego.RegisterLibFunc(&xkbStateUnref, lib, "xkb_state_unref")
		purego.RegisterLibFunc(&xkbContextUnref, lib, "xkb_context_unref")
	})
	return xkbErr
}

// KeyMapper translates evdev keycodes to keysyms and runes using the
// keymap the compositor advertised.
type KeyMapper struct {
	ctx    uintptr
	keymap uintptr
	state  uintptr
}

// NewKeyMapper compiles a keymap string received over wl_keyboard.
func NewKeyMapper(keymap string) (*KeyMapper, error) {
	if err := loadXkb(); err != nil {
		return nil, err
	}

	ctx := xkbContextNew(xkbContextNoFlags)
	if ctx == 0 {
		return nil, fmt.Errorf("failed to create xkb context")
	}

	km := xkbKeymapNewFromString(ctx, append([]byte(keymap), 0), xkbKeymapFormatTextV1, 0)
	if km == 0 {
		xkbContextUnref(ctx)
		return nil, fmt.Errorf("failed to compile keymap")
	}

	st := xkbStateNew(km)
	if st == 0 {
		xkbKeymapUnref(km)
		xkbContextUnref(ctx)
		return nil, fmt.Errorf("failed to create xkb state")
	}

	return &KeyMapper{ctx: ctx, keymap: km, state: st}, nil
}

// Keysym resolves an evdev keycode. xkb keycodes are offset by 8.
func (m *KeyMapper) Keysym(code uint32) uint32 {
	return uint32(xkbStateKeyGetOneSym(m.state, uint(code+8)))
}

// Rune resolves an evdev keycode to a character, or 0 if it has none.
func (m *KeyMapper) Rune(code uint32) rune {
	return rune(xkbKeysymToUtf32(uint(m.Keysym(code))))
}

// Close releases the xkb objects.
func (m *KeyMapper) Close() {
	if m.state != 0 {
		xkbStateUnref(m.state)
	}
	if m.keymap != 0 {
		xkbKeymapUnref(m.keymap)
	}
	if m.ctx != 0 {
		xkbContextUnref(m.ctx)
	}
}
