package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Configuration holds the application settings
type Configuration struct {
	// Background fill color in hex ("2e3440" or "#2e3440")
	BackgroundColor string `json:"background_color"`

	// Optional background image painted over the fill
	BackgroundImage string `json:"background_image"`

	// Whether the background image is tiled instead of painted once
	TileImage bool `json:"tile_image"`

	// Whether the unlock indicator ring is drawn at all
	ShowIndicator bool `json:"show_indicator"`

	// Whether the clock panel is drawn
	ShowClock bool `json:"show_clock"`

	// Whether the failed attempt counter is displayed inside the ring
	ShowFailedAttempts bool `json:"show_failed_attempts"`

	// Path to a TTF/OTF font file; empty uses a builtin bitmap face
	FontPath string `json:"font_path"`

	// DPI override; 0 autodetects from the display server
	DPI float64 `json:"dpi"`

	// PAM service name to use for authentication
	PamService string `json:"pam_service"`

	// Command to run before locking the screen
	PreLockCommand string `json:"pre_lock_command"`

	// Command to run after unlocking the screen
	PostLockCommand string `json:"post_lock_command"`

	// Enable debug exit with ESC key
	DebugExit bool `json:"debug_exit"`

	// Failed attempts before a lockout cooldown engages
	LockoutThreshold int `json:"lockout_threshold"`

	// Base cooldown duration in seconds, escalates on repeat lockouts
	LockoutBaseSeconds int `json:"lockout_base_seconds"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Configuration {
	pamService := "system-auth"
	if _, err := os.Stat("/etc/pam.d/nordlock"); err == nil {
		pamService = "nordlock"
	}

	return Configuration{
		BackgroundColor:    "2e3440",
		ShowIndicator:      true,
		ShowClock:          true,
		ShowFailedAttempts: false,
		PamService:         pamService,
		DebugExit:          false, // Disabled by default for security
		LockoutThreshold:   3,
		LockoutBaseSeconds: 30,
	}
}

// LoadConfig loads configuration from the specified file path
func LoadConfig(path string, config *Configuration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}

	err = json.Unmarshal(data, config)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %v", err)
	}

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	return nil
}

// SaveConfig saves the current configuration to the specified file path
func SaveConfig(path string, config Configuration) error {
	if err := validateConfig(&config); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %v", err)
	}

	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}

// validateConfig checks if the configuration is valid
func validateConfig(config *Configuration) error {
	if _, err := ParseHexColor(config.BackgroundColor); err != nil {
		return err
	}

	if config.BackgroundImage != "" {
		if _, err := os.Stat(config.BackgroundImage); err != nil {
			return fmt.Errorf("background image not accessible: %v", err)
		}
	}

	if config.DPI < 0 {
		return fmt.Errorf("dpi must not be negative")
	}

	if config.LockoutThreshold <= 0 {
		return fmt.Errorf("lockout threshold must be positive")
	}

	if config.LockoutBaseSeconds <= 0 {
		return fmt.Errorf("lockout base duration must be positive")
	}

	return nil
}

// GenerateDefaultConfigFile creates a default configuration file if it doesn't exist
func GenerateDefaultConfigFile() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %v", err)
	}

	configDir := filepath.Join(homeDir, ".config", "nordlock")

	err = os.MkdirAll(configDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	configPath := filepath.Join(configDir, "config.json")

	if _, err = os.Stat(configPath); err == nil {
		// Config file already exists, no need to create it
		return nil
	}

	if err := SaveConfig(configPath, DefaultConfig()); err != nil {
		return fmt.Errorf("failed to save default config: %v", err)
	}

	return nil
}

// DefaultConfigPath returns the path of the user config file, or an empty
// string if the home directory cannot be determined.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "nordlock", "config.json")
}
