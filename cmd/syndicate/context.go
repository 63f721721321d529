package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"syndicate/internal/config"
	"syndicate/internal/daemonrun"
	"syndicate/internal/ipc"
	"syndicate/internal/logging"
)

// skipConfigAnnotation marks commands (and their children) that must run
// without a loadable configuration file.
const skipConfigAnnotation = "skipConfigLoad"

// commandContext is shared by every subcommand. The configuration is loaded
// lazily, at most once per process.
type commandContext struct {
	socketFlag *string
	configFlag *string

	load       sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{socketFlag: socketFlag, configFlag: configFlag}
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.load.Do(func() {
		cfg, resolved, _, err := config.Load(flagValue(c.configFlag))
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.configErr = err
			return
		}
		c.config, c.configPath = cfg, resolved
	})
	return c.config, c.configErr
}

// socketPath honours --socket before the configured state directory.
func (c *commandContext) socketPath() string {
	if socket := flagValue(c.socketFlag); socket != "" {
		return socket
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return ""
	}
	return cfg.SocketPath()
}

// withClient runs fn against the daemon and fails when it is unreachable.
func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return dialFailure(socket, err)
	}
	defer client.Close()
	return fn(client)
}

// tryClient returns nil when no daemon answers; callers fall back to the store.
func (c *commandContext) tryClient() *ipc.Client {
	client, err := ipc.Dial(c.socketPath())
	if err != nil {
		return nil
	}
	return client
}

// withStack opens the store and services in-process for commands that run
// without the daemon. Warnings from the services go to stderr.
func (c *commandContext) withStack(ctx context.Context, fn func(*daemonrun.Stack) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	stack, err := daemonrun.NewStack(ctx, cfg, offlineLogger(cfg))
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(stack)
}

func offlineLogger(cfg *config.Config) *slog.Logger {
	level := "warn"
	if logging.ParseLevel(cfg.Logging.Level) > slog.LevelWarn {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{Level: level, Format: "console", OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func dialFailure(socket string, err error) error {
	if errors.Is(err, syscall.ENOENT) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `syndicate start`", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
