package broker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"golang.org/x/sys/unix"
)

// DefaultPIDFile is where the broker image writes its pid
const DefaultPIDFile = "/run/mosquitto.pid"

// ErrNotRunning is returned when the broker process cannot be found
var ErrNotRunning = errors.New("broker is not running")

// Controller signals the broker process identified by a pid file. It never
// starts the broker; a supervisor is expected to respawn it after Restart.
type Controller struct {
	PIDFile string

	kill func(pid int, sig unix.Signal) error
}

// NewController creates a controller for pidFile
func NewController(pidFile string) *Controller {
	return &Controller{PIDFile: pidFile, kill: unix.Kill}
}

// Reload asks the broker to re-read its configuration. A missing pid file
// is logged and treated as success, since there is nothing to reload yet.
func (c *Controller) Reload() error {
	logger := log.WithComponent("broker")

	pid, err := c.readPID()
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("pid_file", c.PIDFile).Msg("PID file not found, cannot reload broker")
		return nil
	}
	if err != nil {
		return err
	}

	if alive, err := c.alive(pid); !alive {
		return fmt.Errorf("%w: process %d: %v", ErrNotRunning, pid, err)
	}

	logger.Info().Int("pid", pid).Msg("Sending SIGHUP to broker")
	if err := c.signal(pid, unix.SIGHUP); err != nil {
		return fmt.Errorf("failed to reload broker: %w", err)
	}
	return nil
}

// Restart terminates the broker so its supervisor starts it again with the
// current configuration. It does not wait for the new process.
func (c *Controller) Restart() error {
	logger := log.WithComponent("broker")

	pid, err := c.readPID()
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: pid file %s not found", ErrNotRunning, c.PIDFile)
	}
	if err != nil {
		return err
	}

	logger.Info().Int("pid", pid).Msg("Sending SIGTERM to broker to trigger restart")
	if err := c.signal(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("%w: process %d", ErrNotRunning, pid)
		}
		return fmt.Errorf("failed to restart broker: %w", err)
	}
	return nil
}

// Running reports the broker pid and whether the process is alive
func (c *Controller) Running() (int, bool) {
	pid, err := c.readPID()
	if err != nil {
		return 0, false
	}
	alive, _ := c.alive(pid)
	return pid, alive
}

// alive probes pid with signal 0. EPERM means the process exists but
// belongs to another user.
func (c *Controller) alive(pid int) (bool, error) {
	err := c.signal(pid, 0)
	if err == nil || errors.Is(err, unix.EPERM) {
		return true, nil
	}
	return false, err
}

func (c *Controller) signal(pid int, sig unix.Signal) error {
	if c.kill == nil {
		return unix.Kill(pid, sig)
	}
	return c.kill(pid, sig)
}

func (c *Controller) readPID() (int, error) {
	data, err := os.ReadFile(c.PIDFile)
	if err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return 0, fmt.Errorf("pid file %s is empty", c.PIDFile)
	}
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s has invalid content %q", c.PIDFile, raw)
	}
	return pid, nil
}
