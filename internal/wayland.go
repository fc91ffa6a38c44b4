package internal

import (
	"fmt"
	"image"
	"sync"
	"syscall"
	"time"

	"github.com/neurlang/wayland/wl"
	"github.com/neurlang/wayland/wlclient"
	ext "github.com/tuxx/wayland-ext-session-lock-go"
	"golang.org/x/sys/unix"
)

var _ wl.KeyboardKeyHandler = (*WaylandLocker)(nil)
var _ wl.KeyboardKeymapHandler = (*WaylandLocker)(nil)
var _ wl.KeyboardModifiersHandler = (*WaylandLocker)(nil)
var _ wl.SeatCapabilitiesHandler = (*WaylandLocker)(nil)

// waylandSurface tracks one lock surface and its configured size.
type waylandSurface struct {
	output      *wl.Output
	wlSurface   *wl.Surface
	lockSurface *ext.SessionLockSurface
	width       int
	height      int
	configured  bool
}

// WaylandLocker implements the ScreenLocker interface using the
// ext-session-lock protocol: one lock surface per output, each showing
// its monitor's slice of the composited frame.
type WaylandLocker struct {
	mu     sync.Mutex
	config Configuration

	display     *wl.Display
	registry    *wl.Registry
	compositor  *wl.Compositor
	shm         *wl.Shm
	seat        *wl.Seat
	keyboard    *wl.Keyboard
	lockManager *ext.SessionLockManager
	lock        *ext.SessionLock

	outputs  map[uint32]*wl.Output
	geom     map[*wl.Output]Monitor
	surfaces map[*wl.Output]*waylandSurface

	render   *RenderContext
	password *SecurePassword
	helper   *LockHelper
	lockout  *LockoutManager
	keymap   *KeyMapper

	lockActive bool
	lockFailed bool
	done       chan struct{}
	doneOnce   sync.Once
	clearTimer *time.Timer
	wrongTimer *time.Timer
}

// closeDone signals completion exactly once; both the compositor finishing
// the lock and a successful unlock race toward it.
func (l *WaylandLocker) closeDone() {
	l.doneOnce.Do(func() { close(l.done) })
}

// NewWaylandLocker creates a new Wayland-based screen locker
func NewWaylandLocker(config Configuration) *WaylandLocker {
	return &WaylandLocker{
		config:   config,
		outputs:  make(map[uint32]*wl.Output),
		geom:     make(map[*wl.Output]Monitor),
		surfaces: make(map[*wl.Output]*waylandSurface),
		password: NewSecurePassword(),
		helper:   NewLockHelper(config),
		lockout:  NewLockoutManager(config),
		done:     make(chan struct{}),
	}
}

// MonitorRects returns the output rectangles advertised by the compositor.
func (l *WaylandLocker) MonitorRects() []Monitor {
	monitors := make([]Monitor, 0, len(l.geom))
	for _, mon := range l.geom {
		if mon.Width > 0 && mon.Height > 0 {
			monitors = append(monitors, mon)
		}
	}
	return monitors
}

// Resolution returns the bounding box of all outputs.
func (l *WaylandLocker) Resolution() (int, int) {
	width, height := 0, 0
	for _, mon := range l.MonitorRects() {
		if mon.X+mon.Width > width {
			width = mon.X + mon.Width
		}
		if mon.Y+mon.Height > height {
			height = mon.Y + mon.Height
		}
	}
	if width == 0 || height == 0 {
		// Nothing advertised yet; fall back to the configured surfaces.
		for _, ws := range l.surfaces {
			if ws.configured {
				return ws.width, ws.height
			}
		}
	}
	return width, height
}

// ScaleFactor uses the configured DPI; Wayland output scale handling is
// left to the compositor.
func (l *WaylandLocker) ScaleFactor() float64 {
	dpi := l.config.DPI
	if dpi < 96 {
		dpi = 96
	}
	return dpi / 96
}

// Lock locks the session and blocks until it is unlocked.
func (l *WaylandLocker) Lock() error {
	if err := l.helper.EnsureSingleInstance(); err != nil {
		return err
	}
	if err := l.helper.RunPreLockCommand(); err != nil {
		Warn("Pre-lock command error: %v", err)
	}

	if err := l.initWayland(); err != nil {
		return err
	}

	if l.config.ShowClock {
		go l.tickClock()
	}

	<-l.done

	if err := l.helper.RunPostLockCommand(); err != nil {
		Warn("Post-lock command error: %v", err)
	}
	if l.lockFailed {
		return fmt.Errorf("compositor refused the session lock")
	}
	return nil
}

// HandleRegistryGlobal binds the interfaces the locker needs.
func (l *WaylandLocker) HandleRegistryGlobal(ev wl.RegistryGlobalEvent) {
	switch ev.Interface {
	case "wl_compositor":
		l.compositor = wlclient.RegistryBindCompositorInterface(l.registry, ev.Name, 4)
		Debug("Bound wl_compositor")
	case "wl_shm":
		l.shm = wlclient.RegistryBindShmInterface(l.registry, ev.Name, 1)
		Debug("Bound wl_shm")
	case "wl_seat":
		l.seat = wlclient.RegistryBindSeatInterface(l.registry, ev.Name, 7)
		l.seat.AddCapabilitiesHandler(l)
		Debug("Bound wl_seat")
	case "ext_session_lock_manager_v1":
		l.lockManager = ext.BindSessionLockManager(l.registry, ev.Name, 1)
		Debug("Bound ext_session_lock_manager_v1")
	case "wl_output":
		output := wlclient.RegistryBindOutputInterface(l.registry, ev.Name, 3)
		l.mu.Lock()
		l.outputs[ev.Name] = output
		l.mu.Unlock()
		l.watchOutput(output)
		Debug("Bound wl_output %d", ev.Name)
	}
}

type outputGeometryHandlerFunc func(wl.OutputGeometryEvent)

func (f outputGeometryHandlerFunc) HandleOutputGeometry(ev wl.OutputGeometryEvent) { f(ev) }

type outputModeHandlerFunc func(wl.OutputModeEvent)

func (f outputModeHandlerFunc) HandleOutputMode(ev wl.OutputModeEvent) { f(ev) }

// watchOutput subscribes to position and mode events for an output.
func (l *WaylandLocker) watchOutput(output *wl.Output) {
	output.AddGeometryHandler(outputGeometryHandlerFunc(func(ev wl.OutputGeometryEvent) {
		l.setOutputOrigin(output, int(ev.X), int(ev.Y))
	}))
	output.AddModeHandler(outputModeHandlerFunc(func(ev wl.OutputModeEvent) {
		if ev.Flags&wl.OutputModeCurrent == 0 {
			return
		}
		l.setOutputMode(output, int(ev.Width), int(ev.Height))
	}))
}

// setOutputOrigin records an output position. The geometry map is shared
// with the redraw path, so the lock must be held for the write.
func (l *WaylandLocker) setOutputOrigin(output *wl.Output, x, y int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mon := l.geom[output]
	mon.X = x
	mon.Y = y
	l.geom[output] = mon
}

// setOutputMode records an output size. A size change reshapes the
// virtual desktop, which invalidates the cached background surface.
func (l *WaylandLocker) setOutputMode(output *wl.Output, width, height int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mon := l.geom[output]
	changed := mon.Width != 0 && (mon.Width != width || mon.Height != height)
	mon.Width = width
	mon.Height = height
	l.geom[output] = mon
	if changed && l.render != nil {
		Info("Output mode changed to %dx%d", width, height)
		l.render.InvalidateSurfaceCache()
		if err := l.redraw(); err != nil {
			Error("Redraw after mode change failed: %v", err)
		}
	}
}

// HandleSeatCapabilities wires the keyboard when the seat grows one.
func (l *WaylandLocker) HandleSeatCapabilities(ev wl.SeatCapabilitiesEvent) {
	if ev.Capabilities&wl.SeatCapabilityKeyboard == 0 {
		l.keyboard = nil
		return
	}
	if l.keyboard != nil {
		return
	}

	keyboard, err := l.seat.GetKeyboard()
	if err != nil {
		Error("Failed to get keyboard: %v", err)
		return
	}
	l.keyboard = keyboard
	l.keyboard.AddKeyHandler(l)
	l.keyboard.AddKeymapHandler(l)
	l.keyboard.AddModifiersHandler(l)
	Debug("Keyboard handlers added")
}

// HandleKeyboardKeymap compiles the advertised keymap via libxkbcommon.
func (l *WaylandLocker) HandleKeyboardKeymap(ev wl.KeyboardKeymapEvent) {
	defer unix.Close(int(ev.Fd))
	// Format 1 is xkb_v1, the only one the protocol defines.
	if ev.Format != 1 || ev.Size == 0 {
		return
	}

	data, err := syscall.Mmap(int(ev.Fd), 0, int(ev.Size), syscall.PROT_READ, syscall.MAP_PRIVATE)
	if err != nil {
		Error("Failed to map keymap: %v", err)
		return
	}
	defer syscall.Munmap(data)

	mapper, err := NewKeyMapper(string(data[:ev.Size-1]))
	if err != nil {
		Warn("Keymap unusable, falling back to builtin keycode table: %v", err)
		return
	}

	l.mu.Lock()
	if l.keymap != nil {
		l.keymap.Close()
	}
	l.keymap = mapper
	l.mu.Unlock()
	Debug("Compiled compositor keymap")
}

// HandleKeyboardModifiers tracks CapsLock for the modifier line.
func (l *WaylandLocker) HandleKeyboardModifiers(ev wl.KeyboardModifiersEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.render == nil {
		return
	}
	// Bit 1 is the conventional Lock modifier index.
	if ev.ModsLocked&0x2 != 0 {
		l.render.State.SetModifierLabel("Caps Lock")
	} else {
		l.render.State.SetModifierLabel("")
	}
}

const (
	evdevKeyEscape    = 1
	evdevKeyBackspace = 14
	evdevKeyEnter     = 28
	evdevKeyKPEnter   = 96
)

// HandleKeyboardKey maps key presses to input state transitions.
func (l *WaylandLocker) HandleKeyboardKey(ev wl.KeyboardKeyEvent) {
	if ev.State != 1 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.render == nil {
		return
	}

	switch ev.Key {
	case evdevKeyEscape:
		if l.config.DebugExit {
			Info("Debug exit triggered")
			l.unlock()
			return
		}
		l.password.Clear()
		l.render.State.SetBufferedLength(0)
		l.render.State.SetAuthState(AuthIdle)
		l.clearIndicator()

	case evdevKeyEnter, evdevKeyKPEnter:
		l.authenticate()

	case evdevKeyBackspace:
		if l.password.Length() > 0 {
			l.password.RemoveLast()
			l.render.State.SetBufferedLength(l.password.Length())
			l.render.State.SetInputState(InputBackspaceActive)
		} else {
			l.render.State.SetInputState(InputNothingToDelete)
		}
		if err := l.redraw(); err != nil {
			Error("Redraw failed: %v", err)
		}
		l.scheduleIndicatorClear()

	default:
		r := l.resolveRune(ev.Key)
		if r >= 0x20 && r != 0x7f {
			l.password.AppendRune(r)
			l.render.State.SetBufferedLength(l.password.Length())
			l.render.State.SetInputState(InputKeyActive)
			if err := l.redraw(); err != nil {
				Error("Redraw failed: %v", err)
			}
			l.scheduleIndicatorClear()
		}
	}
}

// resolveRune prefers the compiled keymap and falls back to a plain
// US-layout table for the common printable rows.
func (l *WaylandLocker) resolveRune(code uint32) rune {
	if l.keymap != nil {
		return l.keymap.Rune(code)
	}
	return usLayoutRune(code)
}

func usLayoutRune(code uint32) rune {
	switch {
	case code >= 2 && code <= 10:
		return rune('1' + code - 2)
	case code == 11:
		return '0'
	case code >= 16 && code <= 25:
		return rune("qwertyuiop"[code-16])
	case code >= 30 && code <= 38:
		return rune("asdfghjkl"[code-30])
	case code >= 44 && code <= 50:
		return rune("zxcvbnm"[code-44])
	case code == 57:
		return ' '
	}
	return 0
}

// HandleSessionLockLocked fires when the compositor accepted the lock.
func (l *WaylandLocker) HandleSessionLockLocked(ev ext.SessionLockLockedEvent) {
	Info("Session is now locked")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lockActive = true
	if l.render.State.Auth == AuthLock {
		l.render.State.SetAuthState(AuthIdle)
		if err := l.redraw(); err != nil {
			Error("Redraw after lock failed: %v", err)
		}
	}
}

// HandleSessionLockFinished fires when the compositor ended the lock.
func (l *WaylandLocker) HandleSessionLockFinished(ev ext.SessionLockFinishedEvent) {
	l.mu.Lock()
	if !l.lockActive {
		Error("Lock failed to activate before finishing")
		l.lockFailed = true
		l.render.State.SetAuthState(AuthLockFailed)
	}
	l.mu.Unlock()
	l.closeDone()
}

type lockSurfaceHandler struct {
	locker *WaylandLocker
	ws     *waylandSurface
}

func (h *lockSurfaceHandler) HandleSessionLockSurfaceConfigure(ev ext.SessionLockSurfaceConfigureEvent) {
	h.ws.lockSurface.AckConfigure(ev.Serial)

	l := h.locker
	l.mu.Lock()
	defer l.mu.Unlock()

	h.ws.width = int(ev.Width)
	h.ws.height = int(ev.Height)
	h.ws.configured = true

	if mon, ok := l.geom[h.ws.output]; !ok || mon.Width == 0 {
		l.geom[h.ws.output] = Monitor{Width: h.ws.width, Height: h.ws.height}
	}

	Debug("Surface configured: %dx%d", ev.Width, ev.Height)
	if err := l.redraw(); err != nil {
		Error("Redraw after configure failed: %v", err)
	}
}

// redraw composites the frame and presents every configured surface.
func (l *WaylandLocker) redraw() error {
	frame, err := l.render.Redraw()
	if err != nil {
		return err
	}
	for _, ws := range l.surfaces {
		if ws.configured {
			if err := l.presentSurface(ws, frame); err != nil {
				return err
			}
		}
	}
	return nil
}

// presentSurface copies this output's slice of the frame into a fresh
// shm buffer and commits it.
func (l *WaylandLocker) presentSurface(ws *waylandSurface, frame *image.RGBA) error {
	stride := ws.width * 4
	size := stride * ws.height

	fd, err := unix.MemfdCreate("nordlock-frame", unix.MFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("failed to create memfd: %v", err)
	}
	defer unix.Close(fd)

	if err := syscall.Ftruncate(fd, int64(size)); err != nil {
		return fmt.Errorf("failed to size shm buffer: %v", err)
	}

	data, err := syscall.Mmap(fd, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to map shm buffer: %v", err)
	}
	defer syscall.Munmap(data)

	mon := l.geom[ws.output]
	copyFrameRegion(data, frame, mon.X, mon.Y, ws.width, ws.height)

	pool, err := l.shm.CreatePool(uintptr(fd), int32(size))
	if err != nil {
		return fmt.Errorf("failed to create shm pool: %v", err)
	}
	buffer, err := pool.CreateBuffer(0, int32(ws.width), int32(ws.height), int32(stride), wl.ShmFormatArgb8888)
	if err != nil {
		pool.Destroy()
		return fmt.Errorf("failed to create shm buffer: %v", err)
	}
	pool.Destroy()

	ws.wlSurface.Attach(buffer, 0, 0)
	ws.wlSurface.Damage(0, 0, int32(ws.width), int32(ws.height))
	ws.wlSurface.Commit()
	return nil
}

// copyFrameRegion converts the RGBA frame region at (ox, oy) into the
// little-endian ARGB8888 layout wl_shm expects.
func copyFrameRegion(dst []byte, frame *image.RGBA, ox, oy, width, height int) {
	bounds := frame.Bounds()
	for y := 0; y < height; y++ {
		fy := oy + y
		if fy >= bounds.Max.Y {
			break
		}
		row := frame.Pix[fy*frame.Stride:]
		out := dst[y*width*4:]
		for x := 0; x < width; x++ {
			fx := ox + x
			if fx >= bounds.Max.X {
				break
			}
			src := row[fx*4 : fx*4+4]
			out[x*4+0] = src[2] // B
			out[x*4+1] = src[1] // G
			out[x*4+2] = src[0] // R
			out[x*4+3] = 0xff
		}
	}
}

func (l *WaylandLocker) scheduleIndicatorClear() {
	if l.clearTimer != nil {
		l.clearTimer.Stop()
	}
	l.clearTimer = time.AfterFunc(time.Second, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.clearIndicator()
	})
}

func (l *WaylandLocker) clearIndicator() {
	frame, err := l.render.ClearIndicator()
	if err != nil {
		Error("Indicator clear failed: %v", err)
		return
	}
	for _, ws := range l.surfaces {
		if ws.configured {
			if err := l.presentSurface(ws, frame); err != nil {
				Error("Present failed: %v", err)
			}
		}
	}
}

func (l *WaylandLocker) scheduleWrongReset() {
	if l.wrongTimer != nil {
		l.wrongTimer.Stop()
	}
	l.wrongTimer = time.AfterFunc(2*time.Second, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.render.State.SetAuthState(AuthIdle)
		l.render.State.SetModifierLabel("")
		l.clearIndicator()
	})
}

func (l *WaylandLocker) authenticate() {
	if l.lockout.IsLockedOut() {
		Info("Authentication locked out for another %v", l.lockout.RemainingTime().Round(time.Second))
		l.password.Clear()
		l.render.State.SetBufferedLength(0)
		l.render.State.SetAuthState(AuthWrong)
		l.render.State.SetModifierLabel("Locked out " + l.lockout.FormatRemainingTime())
		if err := l.redraw(); err != nil {
			Error("Redraw failed: %v", err)
		}
		l.scheduleWrongReset()
		return
	}

	l.render.State.SetAuthState(AuthVerify)
	if err := l.redraw(); err != nil {
		Error("Redraw failed: %v", err)
	}

	result := l.helper.Authenticator().Authenticate(l.password.String())
	l.password.Clear()
	l.render.State.SetBufferedLength(0)

	if result.Success {
		Info("Authentication successful, unlocking session")
		l.lockout.Reset()
		l.unlock()
		return
	}

	Info("Authentication failed: %s", result.Message)
	l.render.State.SetFailedAttempts(l.render.State.FailedAttempts + 1)
	if engaged, duration := l.lockout.HandleFailedAttempt(); engaged {
		Info("Lockout engaged for %v", duration)
	}
	l.render.State.SetAuthState(AuthWrong)
	if err := l.redraw(); err != nil {
		Error("Redraw failed: %v", err)
	}
	l.scheduleWrongReset()
}

func (l *WaylandLocker) unlock() {
	if l.clearTimer != nil {
		l.clearTimer.Stop()
	}
	if l.wrongTimer != nil {
		l.wrongTimer.Stop()
	}
	if l.keymap != nil {
		l.keymap.Close()
		l.keymap = nil
	}
	if l.lock != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					Error("Recovered from panic in unlock: %v", r)
				}
			}()
			l.lock.UnlockAndDestroy()
		}()
	}
	l.closeDone()
}

func (l *WaylandLocker) tickClock() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			if err := l.redraw(); err != nil {
				Error("Clock redraw failed: %v", err)
			}
			l.mu.Unlock()
		}
	}
}

// initWayland connects, binds globals, creates the session lock and one
// lock surface per output, and starts the dispatch loop.
func (l *WaylandLocker) initWayland() error {
	conn, err := wlclient.DisplayConnect(nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Wayland display: %w", err)
	}
	l.display = conn

	registry, err := conn.GetRegistry()
	if err != nil {
		return fmt.Errorf("failed to get registry: %w", err)
	}
	l.registry = registry
	registry.AddGlobalHandler(l)

	if err := wlclient.DisplayRoundtrip(conn); err != nil {
		return fmt.Errorf("failed to process registry events: %w", err)
	}
	// Second roundtrip so output geometry/mode events arrive.
	if err := wlclient.DisplayRoundtrip(conn); err != nil {
		return fmt.Errorf("failed to process output events: %w", err)
	}

	if l.compositor == nil || l.shm == nil || l.lockManager == nil {
		return fmt.Errorf("missing required Wayland interfaces (is ext-session-lock supported?)")
	}

	width, height := l.Resolution()
	if width == 0 || height == 0 {
		width, height = 1920, 1080
	}

	fillColor, err := ParseHexColor(l.config.BackgroundColor)
	if err != nil {
		return err
	}
	fill := FillSpec{Color: fillColor, Tile: l.config.TileImage}
	if l.config.BackgroundImage != "" {
		img, err := LoadBackground(l.config.BackgroundImage, width, height, l.config.TileImage)
		if err != nil {
			Error("Background image unusable, falling back to solid fill: %v", err)
		} else {
			fill.Image = img
		}
	}

	fonts, err := LoadFontSet(l.config.FontPath)
	if err != nil {
		Error("Font unusable, falling back to builtin face: %v", err)
		fonts, _ = LoadFontSet("")
	}

	l.render = NewRenderContext(l.config, l, l, fonts, NewAngleSource(time.Now().UnixNano()), fill)
	// Shown until the compositor confirms the lock.
	l.render.State.SetAuthState(AuthLock)

	lock, err := l.lockManager.Lock()
	if err != nil {
		return fmt.Errorf("failed to create session lock: %w", err)
	}
	l.lock = lock
	ext.SessionLockAddListener(lock, l)

	if err := wlclient.DisplayRoundtrip(conn); err != nil {
		return fmt.Errorf("failed to process lock creation: %w", err)
	}

	for _, output := range l.outputs {
		s, err := l.compositor.CreateSurface()
		if err != nil {
			return fmt.Errorf("failed to create surface: %w", err)
		}
		lockSurface, err := l.lock.GetLockSurface(s, output)
		if err != nil {
			return fmt.Errorf("failed to get lock surface: %w", err)
		}

		ws := &waylandSurface{output: output, wlSurface: s, lockSurface: lockSurface}
		ext.SessionLockSurfaceAddListener(lockSurface, &lockSurfaceHandler{locker: l, ws: ws})
		l.surfaces[output] = ws
	}

	if err := wlclient.DisplayRoundtrip(conn); err != nil {
		return fmt.Errorf("failed to process surface creation: %w", err)
	}

	go func() {
		for {
			select {
			case <-l.done:
				return
			default:
				if err := wlclient.DisplayDispatch(conn); err != nil {
					Error("Failed to dispatch Wayland events: %v", err)
					l.closeDone()
					return
				}
			}
		}
	}()

	return nil
}
