// Package daemonctl launches, inspects, and stops the syndicated process on
// behalf of the CLI.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"syndicate/internal/config"
	"syndicate/internal/daemonrun"
	"syndicate/internal/ipc"
)

// DaemonBinary is the executable name of the daemon.
const DaemonBinary = "syndicated"

const (
	pollInterval = 200 * time.Millisecond
	termGrace    = 2 * time.Second
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions are passed to syndicated as flags.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

func (o LaunchOptions) args() []string {
	var args []string
	if v := strings.TrimSpace(o.ConfigPath); v != "" {
		args = append(args, "--config", v)
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		args = append(args, "--log-level", v)
	}
	return args
}

// StartState describes what EnsureStarted did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StopResult reports how the daemon went down.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// ResolveExecutable prefers a syndicated installed beside the CLI binary and
// falls back to PATH.
func ResolveExecutable() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), DaemonBinary)
		if info, err := os.Stat(sibling); err == nil && info.Mode().IsRegular() {
			return sibling, nil
		}
	}
	found, err := exec.LookPath(DaemonBinary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", DaemonBinary, err)
	}
	return found, nil
}

// Launch starts syndicated in its own session and does not wait for it.
func Launch(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("launch daemon: executable path is empty")
	}
	cmd := exec.Command(executable, opts.args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return cmd.Process.Release()
}

// poll calls done every pollInterval until it returns true or timeout passes.
func poll(timeout time.Duration, done func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if done() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func answering(socketPath string) bool {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// EnsureStarted launches the daemon unless one already answers on socketPath,
// then waits up to timeout for it to report running.
func EnsureStarted(socketPath, executable string, opts LaunchOptions, timeout time.Duration) (StartState, error) {
	if answering(socketPath) {
		return StartStateAlreadyRunning, nil
	}
	if err := Launch(executable, opts); err != nil {
		return "", err
	}
	var client *ipc.Client
	var dialErr error
	if !poll(timeout, func() bool {
		client, dialErr = ipc.Dial(socketPath)
		return dialErr == nil
	}) {
		return "", fmt.Errorf("daemon failed to start: %w", dialErr)
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return "", err
	}
	if !status.Running {
		return "", errors.New("daemon answered but is not running")
	}
	return StartStateStarted, nil
}

// WaitForShutdown returns nil once nothing answers on socketPath.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	if poll(timeout, func() bool { return !answering(socketPath) }) {
		return nil
	}
	return fmt.Errorf("daemon still answering on %s after %s", socketPath, timeout)
}

// ReadPID returns the pid recorded in the daemon pid file.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %q", pidPath)
	}
	return pid, nil
}

// TerminateProcess signals the daemon recorded in pidPath (or fallbackPID
// when the file is missing) with SIGTERM, escalates to SIGKILL if it is
// still alive after a short grace period, and removes the pid file.
func TerminateProcess(pidPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		pid = fallbackPID
	default:
		return 0, err
	}
	if pid <= 0 {
		return 0, fmt.Errorf("no daemon pid known (pid file %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to signal the current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	gone := func() bool { return errors.Is(unix.Kill(pid, 0), unix.ESRCH) }
	if !poll(termGrace, gone) {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return 0, fmt.Errorf("kill daemon %d: %w", pid, err)
		}
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return pid, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	return pid, nil
}

// StopAndTerminate asks the daemon to stop over IPC and terminates the
// process if it still answers after grace.
func StopAndTerminate(cfg *config.Config, grace time.Duration) (StopResult, error) {
	socketPath := cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return StopResult{}, ErrDaemonNotRunning
	}
	var result StopResult
	if status, err := client.Status(); err == nil {
		result.PID = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp.Stopped

	if WaitForShutdown(socketPath, grace) == nil {
		return result, nil
	}
	pid, err := TerminateProcess(daemonrun.PIDPath(cfg), result.PID)
	if err != nil {
		return result, fmt.Errorf("terminate daemon: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}
