package internal

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xinerama"
	"github.com/BurntSushi/xgb/xproto"
)

// X11Locker implements the ScreenLocker interface for X11. It owns the
// lock window and the background pixmap the composited frames are
// presented through, and serializes every redraw trigger (key events,
// clock ticks, timers) behind one mutex.
type X11Locker struct {
	config Configuration

	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	window xproto.Window
	gc     xproto.Gcontext
	width  uint16
	height uint16

	hasXinerama bool
	hasRandR    bool
	monitors    []Monitor

	render   *RenderContext
	password *SecurePassword
	helper   *LockHelper
	lockout  *LockoutManager
	session  *SessionMonitor

	bgPixmap  xproto.Pixmap
	hasPixmap bool

	mu         sync.Mutex
	isLocked   bool
	clearTimer *time.Timer
	wrongTimer *time.Timer
	done       chan struct{}
}

// NewX11Locker creates a new X11-based screen locker
func NewX11Locker(config Configuration) *X11Locker {
	return &X11Locker{
		config:   config,
		password: NewSecurePassword(),
		helper:   NewLockHelper(config),
		lockout:  NewLockoutManager(config),
		done:     make(chan struct{}),
	}
}

// MonitorRects returns the monitor layout detected via Xinerama.
func (l *X11Locker) MonitorRects() []Monitor {
	return l.monitors
}

// Resolution returns the root window size.
func (l *X11Locker) Resolution() (int, int) {
	return int(l.width), int(l.height)
}

// ScaleFactor derives the scaling factor from the configured DPI
// override or from the physical screen dimensions, floored at 96 DPI.
func (l *X11Locker) ScaleFactor() float64 {
	dpi := l.config.DPI
	if dpi <= 0 && l.screen != nil && l.screen.HeightInMillimeters > 0 {
		dpi = float64(l.screen.HeightInPixels) * 25.4 / float64(l.screen.HeightInMillimeters)
	}
	if dpi < 96 {
		dpi = 96
	}
	return dpi / 96
}

// Init sets up the X11 connection, the lock window and the render context.
func (l *X11Locker) Init() error {
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %v", err)
	}
	l.conn = conn

	setup := xproto.Setup(conn)
	l.screen = setup.DefaultScreen(conn)
	l.width = l.screen.WidthInPixels
	l.height = l.screen.HeightInPixels

	if err := xinerama.Init(conn); err == nil {
		l.hasXinerama = true
	} else {
		Warn("Xinerama unavailable, using the full root window: %v", err)
	}
	l.monitors = l.detectMonitors()

	if err := randr.Init(conn); err == nil {
		l.hasRandR = true
		randr.SelectInput(conn, l.screen.Root, randr.NotifyMaskScreenChange)
	} else {
		Warn("RandR unavailable, resolution changes will not be tracked: %v", err)
	}

	fillColor, err := ParseHexColor(l.config.BackgroundColor)
	if err != nil {
		return err
	}
	fill := FillSpec{Color: fillColor, Tile: l.config.TileImage}
	if l.config.BackgroundImage != "" {
		img, err := LoadBackground(l.config.BackgroundImage, int(l.width), int(l.height), l.config.TileImage)
		if err != nil {
			// A missing wallpaper must not stop the screen from locking.
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

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		return fmt.Errorf("failed to allocate window ID: %v", err)
	}
	l.window = wid

	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{
		l.screen.BlackPixel,
		1, // override redirect keeps the WM away from the lock window
		uint32(xproto.EventMaskKeyPress | xproto.EventMaskExposure | xproto.EventMaskStructureNotify),
	}
	err = xproto.CreateWindowChecked(
		conn,
		l.screen.RootDepth,
		l.window,
		l.screen.Root,
		0, 0,
		l.width, l.height,
		0,
		xproto.WindowClassInputOutput,
		l.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create lock window: %v", err)
	}

	gcid, err := xproto.NewGcontextId(conn)
	if err != nil {
		return fmt.Errorf("failed to allocate graphics context: %v", err)
	}
	l.gc = gcid
	err = xproto.CreateGCChecked(conn, l.gc, xproto.Drawable(l.screen.Root),
		xproto.GcForeground, []uint32{l.screen.BlackPixel}).Check()
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %v", err)
	}

	return nil
}

// Lock locks the screen and blocks until the password is accepted.
func (l *X11Locker) Lock() error {
	if err := l.helper.EnsureSingleInstance(); err != nil {
		return err
	}
	if err := l.helper.CheckUserPermissions(); err != nil {
		return err
	}

	if err := l.helper.RunPreLockCommand(); err != nil {
		Warn("Pre-lock command error: %v", err)
	}

	if err := l.Init(); err != nil {
		return err
	}

	if err := xproto.MapWindowChecked(l.conn, l.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %v", err)
	}
	xproto.ConfigureWindow(l.conn, l.window, xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove})

	if err := l.hideCursor(); err != nil {
		Warn("Failed to hide cursor: %v", err)
	}

	if err := l.grabInputs(); err != nil {
		return err
	}

	l.isLocked = true

	l.mu.Lock()
	if err := l.redraw(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	if session, err := NewSessionMonitor(); err == nil {
		l.session = session
		go l.watchSession()
	} else {
		Debug("logind monitor unavailable: %v", err)
	}

	if l.config.ShowClock {
		go l.tickClock()
	}

	l.eventLoop()

	l.cleanup()
	if err := l.helper.RunPostLockCommand(); err != nil {
		Warn("Post-lock command error: %v", err)
	}
	return nil
}

func (l *X11Locker) grabInputs() error {
	keyboard, err := xproto.GrabKeyboard(
		l.conn, true, l.window, xproto.TimeCurrentTime,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
	).Reply()
	if err != nil {
		return fmt.Errorf("failed to grab keyboard: %v", err)
	}
	if keyboard.Status != xproto.GrabStatusSuccess {
		return fmt.Errorf("failed to grab keyboard: status %d", keyboard.Status)
	}

	pointer, err := xproto.GrabPointer(
		l.conn, true, l.window, xproto.EventMaskButtonPress,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
		l.window, xproto.CursorNone, xproto.TimeCurrentTime,
	).Reply()
	if err != nil {
		return fmt.Errorf("failed to grab pointer: %v", err)
	}
	if pointer.Status != xproto.GrabStatusSuccess {
		return fmt.Errorf("failed to grab pointer: status %d", pointer.Status)
	}

	return nil
}

// detectMonitors queries Xinerama for the monitor layout. An empty result
// makes the compositor fall back to the full root window rectangle.
func (l *X11Locker) detectMonitors() []Monitor {
	if !l.hasXinerama {
		return nil
	}

	reply, err := xinerama.QueryScreens(l.conn).Reply()
	if err != nil {
		Warn("Failed to query Xinerama screens: %v", err)
		return nil
	}

	monitors := make([]Monitor, 0, len(reply.ScreenInfo))
	for _, info := range reply.ScreenInfo {
		monitors = append(monitors, Monitor{
			X:      int(info.XOrg),
			Y:      int(info.YOrg),
			Width:  int(info.Width),
			Height: int(info.Height),
		})
	}
	Info("Detected %d monitors", len(monitors))
	return monitors
}

func (l *X11Locker) eventLoop() {
	for l.isLocked {
		ev, xerr := l.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			Error("X connection closed")
			return
		}
		if xerr != nil {
			Debug("X error: %v", xerr)
			continue
		}

		l.mu.Lock()
		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			l.handleKeyPress(e)
		case xproto.ExposeEvent:
			if err := l.redraw(); err != nil {
				Error("Redraw after expose failed: %v", err)
			}
		case xproto.MappingNotifyEvent:
			Debug("Keyboard mapping changed")
		case randr.ScreenChangeNotifyEvent:
			l.handleResolutionChange(e.Width, e.Height)
		}
		l.mu.Unlock()
	}
}

// handleResolutionChange reacts to monitors being added, removed or
// resized: the cached background surface and pixmap are released so the
// next redraw allocates them at the new resolution.
func (l *X11Locker) handleResolutionChange(width, height uint16) {
	if width == l.width && height == l.height {
		return
	}
	Info("Resolution changed to %dx%d", width, height)
	l.width = width
	l.height = height
	l.monitors = l.detectMonitors()

	l.render.InvalidateSurfaceCache()
	l.freePixmap()
	xproto.ConfigureWindow(l.conn, l.window,
		xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(width), uint32(height)})

	if err := l.redraw(); err != nil {
		Error("Redraw after resolution change failed: %v", err)
	}
}

func (l *X11Locker) handleKeyPress(e xproto.KeyPressEvent) {
	reply, err := xproto.GetKeyboardMapping(l.conn, e.Detail, 1).Reply()
	if err != nil || len(reply.Keysyms) == 0 {
		Error("Error getting keyboard mapping: %v", err)
		return
	}
	keySym := reply.Keysyms[0]

	if e.State&xproto.ModMaskLock != 0 {
		l.render.State.SetModifierLabel("Caps Lock")
	} else {
		l.render.State.SetModifierLabel("")
	}

	if l.config.DebugExit && keySym == keysymEscape {
		Info("Debug exit triggered")
		l.isLocked = false
		return
	}

	switch keySym {
	case keysymReturn, keysymKPEnter:
		l.authenticate()

	case keysymBackspace:
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

	case keysymEscape:
		l.password.Clear()
		l.render.State.SetBufferedLength(0)
		l.render.State.SetAuthState(AuthIdle)
		l.clearIndicator()

	default:
		// Only printable characters enter the buffer.
		if keySym >= 0x20 && keySym <= 0x7e {
			l.password.Append(byte(keySym))
			l.render.State.SetBufferedLength(l.password.Length())
			l.render.State.SetInputState(InputKeyActive)
			if err := l.redraw(); err != nil {
				Error("Redraw failed: %v", err)
			}
			l.scheduleIndicatorClear()
		}
	}
}

const (
	keysymReturn    = 0xff0d
	keysymKPEnter   = 0xff8d
	keysymBackspace = 0xff08
	keysymEscape    = 0xff1b
)

// scheduleIndicatorClear arms the timeout that demotes the keypress
// highlight back to the resting indicator.
func (l *X11Locker) scheduleIndicatorClear() {
	if l.clearTimer != nil {
		l.clearTimer.Stop()
	}
	l.clearTimer = time.AfterFunc(time.Second, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.isLocked {
			return
		}
		l.clearIndicator()
	})
}

func (l *X11Locker) clearIndicator() {
	frame, err := l.render.ClearIndicator()
	if err != nil {
		Error("Indicator clear failed: %v", err)
		return
	}
	if err := l.present(frame); err != nil {
		Error("Present failed: %v", err)
	}
}

func (l *X11Locker) authenticate() {
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
		Info("Authentication successful, unlocking screen")
		l.lockout.Reset()
		l.isLocked = false
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

// scheduleWrongReset drops the "Wrong!" state back to idle after a
// short grace period.
func (l *X11Locker) scheduleWrongReset() {
	if l.wrongTimer != nil {
		l.wrongTimer.Stop()
	}
	l.wrongTimer = time.AfterFunc(2*time.Second, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.isLocked {
			return
		}
		l.render.State.SetAuthState(AuthIdle)
		l.render.State.SetModifierLabel("")
		l.clearIndicator()
	})
}

func (l *X11Locker) tickClock() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			if l.isLocked {
				if err := l.redraw(); err != nil {
					Error("Clock redraw failed: %v", err)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *X11Locker) watchSession() {
	for {
		select {
		case <-l.done:
			return
		case <-l.session.Resumed:
			l.mu.Lock()
			if l.isLocked {
				// The screen just woke up, make sure the frame is fresh.
				l.clearIndicator()
			}
			l.mu.Unlock()
		case <-l.session.LockRequested:
			Debug("Already locked, ignoring lock request")
		}
	}
}

// redraw runs the composition pipeline and presents the frame. On
// failure the previously presented frame stays up: stale but consistent
// beats corrupted.
func (l *X11Locker) redraw() error {
	frame, err := l.render.Redraw()
	if err != nil {
		return err
	}
	return l.present(frame)
}

// present uploads the frame into the background pixmap and makes it the
// window background, so exposes repaint server-side without flicker.
func (l *X11Locker) present(frame *image.RGBA) error {
	if !l.hasPixmap {
		pid, err := xproto.NewPixmapId(l.conn)
		if err != nil {
			return fmt.Errorf("failed to allocate pixmap ID: %v", err)
		}
		err = xproto.CreatePixmapChecked(l.conn, l.screen.RootDepth, pid,
			xproto.Drawable(l.screen.Root), l.width, l.height).Check()
		if err != nil {
			return fmt.Errorf("failed to create background pixmap: %v", err)
		}
		l.bgPixmap = pid
		l.hasPixmap = true
	}

	width := frame.Bounds().Dx()
	height := frame.Bounds().Dy()
	data := frameToZPixmap(frame)
	stride := width * 4

	// PutImage requests are bounded; upload the frame in row chunks.
	rowsPerChunk := (256 * 1024) / stride
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}
	for row := 0; row < height; row += rowsPerChunk {
		rows := rowsPerChunk
		if row+rows > height {
			rows = height - row
		}
		chunk := data[row*stride : (row+rows)*stride]
		err := xproto.PutImageChecked(l.conn, xproto.ImageFormatZPixmap,
			xproto.Drawable(l.bgPixmap), l.gc,
			uint16(width), uint16(rows), 0, int16(row),
			0, l.screen.RootDepth, chunk).Check()
		if err != nil {
			return fmt.Errorf("failed to upload frame rows %d-%d: %v", row, row+rows, err)
		}
	}

	xproto.ChangeWindowAttributes(l.conn, l.window, xproto.CwBackPixmap,
		[]uint32{uint32(l.bgPixmap)})
	xproto.ClearArea(l.conn, false, l.window, 0, 0, l.width, l.height)
	return nil
}

// frameToZPixmap converts an RGBA frame to the BGRX layout a 24-bit
// ZPixmap expects on little-endian servers.
func frameToZPixmap(frame *image.RGBA) []byte {
	bounds := frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	out := make([]byte, width*height*4)
	i := 0
	for y := 0; y < height; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+width*4]
		for x := 0; x < width*4; x += 4 {
			out[i+0] = row[x+2] // B
			out[i+1] = row[x+1] // G
			out[i+2] = row[x+0] // R
			out[i+3] = 0xff
			i += 4
		}
	}
	return out
}

func (l *X11Locker) freePixmap() {
	if l.hasPixmap {
		xproto.FreePixmap(l.conn, l.bgPixmap)
		l.hasPixmap = false
	}
}

// hideCursor replaces the cursor with an invisible one for the lock window.
func (l *X11Locker) hideCursor() error {
	cursor, err := xproto.NewCursorId(l.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate cursor ID: %v", err)
	}
	pixmap, err := xproto.NewPixmapId(l.conn)
	if err != nil {
		return fmt.Errorf("failed to allocate pixmap ID: %v", err)
	}
	if err := xproto.CreatePixmapChecked(l.conn, 1, pixmap,
		xproto.Drawable(l.screen.Root), 1, 1).Check(); err != nil {
		return fmt.Errorf("failed to create cursor pixmap: %v", err)
	}
	if err := xproto.CreateCursorChecked(l.conn, cursor, pixmap, pixmap,
		0, 0, 0, 0, 0, 0, 0, 0).Check(); err != nil {
		return fmt.Errorf("failed to create cursor: %v", err)
	}
	xproto.ChangeWindowAttributes(l.conn, l.window, xproto.CwCursor,
		[]uint32{uint32(cursor)})
	xproto.FreePixmap(l.conn, pixmap)
	return nil
}

func (l *X11Locker) cleanup() {
	close(l.done)
	if l.clearTimer != nil {
		l.clearTimer.Stop()
	}
	if l.wrongTimer != nil {
		l.wrongTimer.Stop()
	}
	if l.session != nil {
		l.session.Close()
	}
	if l.conn != nil {
		xproto.UngrabKeyboard(l.conn, xproto.TimeCurrentTime)
		xproto.UngrabPointer(l.conn, xproto.TimeCurrentTime)
		l.freePixmap()
		xproto.UnmapWindow(l.conn, l.window)
		xproto.DestroyWindow(l.conn, l.window)
		l.conn.Close()
	}
}
