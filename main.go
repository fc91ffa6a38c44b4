package main

import (
	"flag"
	"os"

	"github.com/tuxx/nordlock/internal"
	"golang.org/x/sys/unix"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("c", "", "Path to configuration file")
	flag.StringVar(configPath, "config", "", "Path to configuration file")

	imagePath := flag.String("i", "", "Background image path")
	flag.StringVar(imagePath, "image", "", "Background image path")

	tileImage := flag.Bool("t", false, "Tile the background image instead of stretching it")
	flag.BoolVar(tileImage, "tile", false, "Tile the background image instead of stretching it")

	noIndicator := flag.Bool("u", false, "Hide the unlock indicator")
	flag.BoolVar(noIndicator, "no-indicator", false, "Hide the unlock indicator")

	noClock := flag.Bool("no-clock", false, "Hide the clock panel")

	showFailed := flag.Bool("F", false, "Show the number of failed attempts")
	flag.BoolVar(showFailed, "show-failed-attempts", false, "Show the number of failed attempts")

	bgColor := flag.String("color", "", "Background color in rrggbb hex")

	debugExit := flag.Bool("debug-exit", false, "Enable exit with ESC key (for debugging)")

	genConfig := flag.Bool("generate-config", false, "Write a default config file and exit")

	// Add debug mode flag
	debugMode := flag.Bool("log", false, "Enable debug logging")

	flag.Parse()

	// Initialize the logger
	if *debugMode {
		internal.InitLogger(internal.LevelDebug, true)
		internal.Debug("Debug logging enabled")
	} else {
		internal.InitLogger(internal.LevelError, false)
	}

	if *genConfig {
		if err := internal.GenerateDefaultConfigFile(); err != nil {
			internal.Fatal("Failed to generate config: %v", err)
		}
		return
	}

	// Load default configuration
	config := internal.DefaultConfig()

	// Try to find and load config file
	if *configPath == "" {
		defaultConfigPath := internal.DefaultConfigPath()
		if defaultConfigPath != "" {
			if _, err := os.Stat(defaultConfigPath); err == nil {
				// Default config exists, use it
				internal.Info("Using default config file: %s", defaultConfigPath)
				*configPath = defaultConfigPath
			}
		}
	}

	// If config file is provided or found, load it
	if *configPath != "" {
		err := internal.LoadConfig(*configPath, &config)
		if err != nil {
			internal.Error("loading config: %v", err)
			// Continue with default config
		}
	}

	// Flags override the config file
	if *imagePath != "" {
		config.BackgroundImage = *imagePath
	}
	if *tileImage {
		config.TileImage = true
	}
	if *noIndicator {
		config.ShowIndicator = false
	}
	if *noClock {
		config.ShowClock = false
	}
	if *showFailed {
		config.ShowFailedAttempts = true
	}
	if *bgColor != "" {
		config.BackgroundColor = *bgColor
	}
	if *debugExit {
		config.DebugExit = true
	}

	// Keep the password buffer out of swap. Best effort: locking may be
	// denied by RLIMIT_MEMLOCK and the locker still works without it.
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		internal.Warn("Could not lock memory pages: %v", err)
	}

	// Initialize display server detection
	displayServer := DetectDisplayServer()
	internal.Info("Detected display server: %s", displayServer)

	// Initialize the screen locker based on display server
	var locker internal.ScreenLocker

	switch displayServer {
	case "wayland":
		locker = internal.NewWaylandLocker(config)
	case "x11":
		locker = internal.NewX11Locker(config)
	default:
		internal.Fatal("Unsupported display server: %s", displayServer)
	}

	if err := locker.Lock(); err != nil {
		internal.Fatal("Failed to lock screen: %v", err)
	}
}

// DetectDisplayServer detects whether X11 or Wayland is being used
func DetectDisplayServer() string {
	// Check for Wayland session
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	if waylandDisplay != "" {
		return "wayland"
	}

	// Check for X11 session
	xdgSession := os.Getenv("XDG_SESSION_TYPE")
	if xdgSession == "x11" {
		return "x11"
	}

	// Default to X11 if can't determine
	return "x11"
}
