package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"syndicate/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	if result := CheckRedis(context.Background(), mr.Addr(), 0); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckRedis(context.Background(), "", 0); result.Passed {
		t.Fatal("expected failure for missing address")
	}

	addr := mr.Addr()
	mr.Close()
	if result := CheckRedis(context.Background(), addr, 0); result.Passed {
		t.Fatal("expected failure after redis shutdown")
	}
}

func TestCheckNtfy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckNtfy(context.Background(), srv.URL+"/syndicate-alerts"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckNtfy(context.Background(), "not a url"); result.Passed {
		t.Fatal("expected failure for invalid topic")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.InboxDir = t.TempDir()
	cfg.Paths.OutboxDir = t.TempDir()
	cfg.Events.Enabled = false

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesRedisWhenEnabled(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.InboxDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.OutboxDir = t.TempDir()
	cfg.Events.Enabled = true
	cfg.Events.RedisAddr = mr.Addr()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Inbox directory" {
		t.Fatalf("expected only inbox failure, got %+v", failed)
	}
}

func TestCheckAuthFromConfig(t *testing.T) {
	cfg := config.Default()
	if result := CheckAuthFromConfig(&cfg); result.Passed {
		t.Fatal("expected failure without credentials")
	}
	cfg.Paths.APIToken = "admin"
	cfg.Auth.JWTSecret = "secret"
	if result := CheckAuthFromConfig(&cfg); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
}
