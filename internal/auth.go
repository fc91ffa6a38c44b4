package internal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"
	"sync"

	"github.com/msteinert/pam"
	"golang.org/x/sys/unix"
)

// PamAuthenticator handles PAM-based user authentication
type PamAuthenticator struct {
	serviceName string
	username    string
}

// NewPamAuthenticator creates a new PAM authenticator
func NewPamAuthenticator(config Configuration) *PamAuthenticator {
	currentUser, err := user.Current()
	username := "nobody"
	if err == nil {
		username = currentUser.Username
	}

	return &PamAuthenticator{
		serviceName: config.PamService,
		username:    username,
	}
}

// Authenticate attempts to authenticate with the given password
func (a *PamAuthenticator) Authenticate(password string) AuthResult {
	conv := func(style pam.Style, msg string) (string, error) {
		switch style {
		case pam.PromptEchoOff:
			return password, nil
		case pam.PromptEchoOn:
			// Username prompts are ignored, we already provided it
			return "", nil
		case pam.ErrorMsg:
			Info("PAM error: %s", msg)
			return "", nil
		case pam.TextInfo:
			Info("PAM info: %s", msg)
			return "", nil
		default:
			return "", errors.New("unexpected conversation style")
		}
	}

	t, err := pam.StartFunc(a.serviceName, a.username, conv)
	if err != nil {
		return AuthResult{
			Success: false,
			Message: fmt.Sprintf("Failed to start PAM transaction: %v", err),
		}
	}

	if err = t.Authenticate(0); err != nil {
		return AuthResult{
			Success: false,
			Message: fmt.Sprintf("Authentication failed: %v", err),
		}
	}

	if err = t.AcctMgmt(0); err != nil {
		return AuthResult{
			Success: false,
			Message: fmt.Sprintf("Account validation failed: %v", err),
		}
	}

	return AuthResult{
		Success: true,
		Message: "Authentication successful",
	}
}

// LockHelper bundles the collaborators every locker backend needs:
// authentication, the lockout policy and the pre/post lock hooks.
type LockHelper struct {
	authenticator *PamAuthenticator
	config        Configuration
	lockFile      *os.File
}

// NewLockHelper creates a new helper instance with the given configuration
func NewLockHelper(config Configuration) *LockHelper {
	return &LockHelper{
		authenticator: NewPamAuthenticator(config),
		config:        config,
	}
}

// Authenticator returns the PAM authenticator.
func (h *LockHelper) Authenticator() *PamAuthenticator {
	return h.authenticator
}

// RunPreLockCommand runs the configured pre-lock command (if any)
func (h *LockHelper) RunPreLockCommand() error {
	if h.config.PreLockCommand == "" {
		return nil
	}
	Debug("Running pre-lock command: %s", h.config.PreLockCommand)
	return runShellCommand(h.config.PreLockCommand)
}

// RunPostLockCommand runs the configured post-lock command (if any)
func (h *LockHelper) RunPostLockCommand() error {
	if h.config.PostLockCommand == "" {
		return nil
	}
	Debug("Running post-lock command: %s", h.config.PostLockCommand)
	return runShellCommand(h.config.PostLockCommand)
}

// CheckUserPermissions verifies that the user has the necessary permissions
func (h *LockHelper) CheckUserPermissions() error {
	if os.Geteuid() == 0 {
		return errors.New("nordlock should not be run as root for security reasons")
	}
	return nil
}

// EnsureSingleInstance makes sure only one instance of the locker is running
func (h *LockHelper) EnsureSingleInstance() error {
	file, err := os.OpenFile("/tmp/nordlock.lock", os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %v", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		return errors.New("another instance of nordlock is already running")
	}

	// Keep the file open to maintain the lock for the process lifetime.
	h.lockFile = file
	return nil
}

// runShellCommand executes a shell command string
func runShellCommand(cmd string) error {
	return exec.Command("sh", "-c", strings.TrimSpace(cmd)).Run()
}

// SecurePassword holds the typed password and zeroes memory on removal.
type SecurePassword struct {
	mu   sync.Mutex
	data []byte
}

// NewSecurePassword creates a new secure password container
func NewSecurePassword() *SecurePassword {
	return &SecurePassword{
		data: make([]byte, 0, 64),
	}
}

// Append adds a character to the password
func (p *SecurePassword) Append(char byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = append(p.data, char)
}

// AppendRune adds a decoded rune to the password
func (p *SecurePassword) AppendRune(r rune) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = append(p.data, string(r)...)
}

// RemoveLast removes the last character from the password
func (p *SecurePassword) RemoveLast() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.data) > 0 {
		p.data[len(p.data)-1] = 0
		p.data = p.data[:len(p.data)-1]
	}
}

// Clear securely wipes the password data
func (p *SecurePassword) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.data {
		p.data[i] = 0
	}
	p.data = p.data[:0]
}

// String returns the password as a string (use carefully)
func (p *SecurePassword) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.data)
}

// Length returns the password length
func (p *SecurePassword) Length() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.data)
}
