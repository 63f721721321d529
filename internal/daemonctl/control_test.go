package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"syndicate/internal/daemonctl"
	"syndicate/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{name: "valid", content: "4242\n", want: 4242},
		{name: "garbage", content: "abc", wantErr: true},
		{name: "zero", content: "0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".pid")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write pid: %v", err)
			}
			got, err := daemonctl.ReadPID(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadPID err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ReadPID = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTerminateRefusesSelf(t *testing.T) {
	if _, err := daemonctl.TerminateProcess(filepath.Join(t.TempDir(), "missing.pid"), os.Getpid()); err == nil {
		t.Fatal("expected refusal to signal the current process")
	}
}

func TestTerminateWithoutPID(t *testing.T) {
	if _, err := daemonctl.TerminateProcess(filepath.Join(t.TempDir(), "missing.pid"), 0); err == nil {
		t.Fatal("expected an error when no pid is known")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemonctl.StopAndTerminate(cfg, 100*time.Millisecond); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestWaitForShutdownWithoutSocket(t *testing.T) {
	if err := daemonctl.WaitForShutdown(filepath.Join(t.TempDir(), "none.sock"), 100*time.Millisecond); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected empty executable to fail")
	}
}
