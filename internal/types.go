package internal

// Monitor represents a physical display rectangle inside the virtual
// desktop, in logical pixels.
type Monitor struct {
	X      int
	Y      int
	Width  int
	Height int
}

// GeometryProvider supplies the monitor layout and the full virtual
// desktop resolution. Both are sampled at the start of every redraw.
type GeometryProvider interface {
	// MonitorRects returns the known monitor rectangles. An empty slice
	// is allowed; the compositor then falls back to a single rectangle
	// covering the full resolution.
	MonitorRects() []Monitor

	// Resolution returns the size of the full virtual desktop.
	Resolution() (width, height int)
}

// DPIProvider supplies the physical pixel scaling factor (DPI / 96).
type DPIProvider interface {
	ScaleFactor() float64
}

// ScreenLocker interface defines methods that any screen locker should implement
type ScreenLocker interface {
	// Lock locks the screen and blocks until the session is unlocked
	Lock() error
}

// AuthResult represents the result of an authentication attempt
type AuthResult struct {
	Success bool
	Message string
}
