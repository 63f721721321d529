package daemonrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"syndicate/internal/daemonrun"
	"syndicate/internal/events"
	"syndicate/internal/testsupport"
)

func TestNewStackWithoutEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stack, err := daemonrun.NewStack(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	defer stack.Close()

	if _, ok := stack.Publisher.(events.Noop); !ok {
		t.Fatalf("publisher = %T, want events.Noop", stack.Publisher)
	}
	if stack.Engine == nil || stack.Editorial == nil || stack.API == nil || stack.Processor == nil {
		t.Fatal("expected every service to be wired")
	}
	if stack.Processor.Inbox() != cfg.Paths.InboxDir {
		t.Fatalf("inbox = %q, want %q", stack.Processor.Inbox(), cfg.Paths.InboxDir)
	}
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestNewStackWithRedisEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testsupport.NewConfig(t)
	cfg.Events.Enabled = true
	cfg.Events.RedisAddr = mr.Addr()
	cfg.Events.Namespace = "syndicate-test"

	stack, err := daemonrun.NewStack(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	if _, ok := stack.Publisher.(*events.RedisPublisher); !ok {
		t.Fatalf("publisher = %T, want redis publisher", stack.Publisher)
	}
	if err := stack.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewStackRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Events.Enabled = true
	cfg.Events.RedisAddr = addr
	cfg.Events.Namespace = "syndicate-test"
	if _, err := daemonrun.NewStack(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected unreachable redis to fail")
	}
}

func TestPIDPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if got := daemonrun.PIDPath(cfg); got != filepath.Join(cfg.Paths.DataDir, "syndicated.pid") {
		t.Fatalf("PIDPath = %q", got)
	}
}
