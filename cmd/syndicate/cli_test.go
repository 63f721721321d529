package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"syndicate/internal/api"
	"syndicate/internal/auth"
	"syndicate/internal/config"
	"syndicate/internal/store"
	"syndicate/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	socketPath string
}

// setupCLITestEnv writes a config file pointing at temp directories. No
// daemon listens on the socket, so commands run against the local store.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	base := testsupport.BaseDir(cfg)

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		socketPath: filepath.Join(base, "absent.sock"),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--socket", e.socketPath, "--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v (stderr %q)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func (e *cliTestEnv) seed(t *testing.T) {
	t.Helper()
	out := e.mustRun(t, "seed", filepath.Join("..", "..", "internal", "seed", "testdata", "seed.yaml"))
	requireContains(t, out, "Seeded 2 account(s)")
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.mustRun(t, "config", "validate")
	requireContains(t, out, "read/write ok")
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out = env.mustRun(t, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatalf("expected init without --overwrite to fail")
	}
}

func TestSeedAndQueueCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t)

	out := env.mustRun(t, "queue", "list", "--json")
	var queues []api.Queue
	if err := json.Unmarshal([]byte(out), &queues); err != nil {
		t.Fatalf("decode queue list: %v (%q)", err, out)
	}
	if len(queues) != 1 || queues[0].Slug != "wire-daily" || queues[0].Buyer != "wire" {
		t.Fatalf("queues = %+v", queues)
	}
	id := strconv.FormatInt(queues[0].ID, 10)

	st := testsupport.MustOpenStore(t, env.cfg)
	pub, err := st.PublicationBySlug(context.Background(), "daily-news", "city")
	if err != nil {
		t.Fatalf("PublicationBySlug: %v", err)
	}
	testsupport.MustEntry(t, st, pub.ID, "Harbour Bridge Reopens")

	out = env.mustRun(t, "queue", "refresh", id)
	requireContains(t, out, "1 direct")

	out = env.mustRun(t, "queue", "items", id)
	requireContains(t, out, "Harbour Bridge Reopens")
	requireContains(t, out, "scheduled")

	out = env.mustRun(t, "queue", "items", id, "--action", "transmitted")
	requireContains(t, out, "No items")

	out = env.mustRun(t, "report", "status-counts", "--queue", id)
	requireContains(t, out, "Total")
}

func TestQueueCommandsRejectBadInput(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "non-numeric id", args: []string{"queue", "items", "abc"}, want: "invalid id"},
		{name: "zero id", args: []string{"queue", "refresh", "0"}, want: "invalid id"},
		{name: "unknown action", args: []string{"queue", "set-action", "archived", "1"}, want: "action"},
		{name: "bad report field", args: []string{"report", "status-counts", "--field", "updated"}, want: "field"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.run(t, tc.args...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestAccountAndFeedLists(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t)

	out := env.mustRun(t, "account", "list", "--kind", "buyer", "--json")
	var accounts []accountRow
	if err := json.Unmarshal([]byte(out), &accounts); err != nil {
		t.Fatalf("decode account list: %v (%q)", err, out)
	}
	if len(accounts) != 1 || accounts[0].Slug != "wire" || accounts[0].Kind != "buyer" {
		t.Fatalf("accounts = %+v", accounts)
	}
	if _, _, err := env.run(t, "account", "list", "--kind", "reseller"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}

	out = env.mustRun(t, "feed", "list")
	requireContains(t, out, "No feed loads")

	out = env.mustRun(t, "report", "store", "--json")
	var stats map[string]int
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode store report: %v (%q)", err, out)
	}
	if stats["accounts"] != 2 || stats["transmission_queues"] != 1 {
		t.Fatalf("stats = %v", stats)
	}

	st := testsupport.MustOpenStore(t, env.cfg)
	load := &store.FeedLoad{FileName: "city-0412.yaml", Checksum: "f00d", Status: store.FeedRejected, Message: "unknown publication"}
	if err := st.RecordFeedLoad(context.Background(), load); err != nil {
		t.Fatalf("RecordFeedLoad: %v", err)
	}
	out = env.mustRun(t, "feed", "list", "-n", "5")
	requireContains(t, out, "city-0412.yaml")
	requireContains(t, out, "rejected")
	requireContains(t, out, "unknown publication")
}

func TestTokenIssue(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seed(t)

	out, stderr, err := env.run(t, "token", "issue", "wire", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token issue: %v", err)
	}
	requireContains(t, stderr, "expires")
	claims, err := auth.Validate(env.cfg.Auth.JWTSecret, strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Buyer != "wire" {
		t.Fatalf("claims buyer = %q, want wire", claims.Buyer)
	}

	if _, _, err := env.run(t, "token", "issue", "daily-news"); err == nil {
		t.Fatalf("expected provider account to be refused")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out := env.mustRun(t, "stop")
	requireContains(t, out, "not running")
}

func TestDaemonOnlyCommandsExplainMissingSocket(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, args := range [][]string{{"test-notify"}, {"logs"}} {
		_, _, err := env.run(t, args...)
		if err == nil {
			t.Fatalf("%v: expected error without daemon", args)
		}
		requireContains(t, err.Error(), "start the daemon with `syndicate start`")
	}
}
