package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"syndicate/internal/api"
	"syndicate/internal/content"
	"syndicate/internal/daemon"
	"syndicate/internal/ipc"
	"syndicate/internal/logging"
	"syndicate/internal/testsupport"
	"syndicate/internal/transmission"
	"syndicate/internal/workflow"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	st := testsupport.MustOpenStore(t, cfg)
	provider := testsupport.MustAccount(t, st, "herald", content.AccountProvider)
	pub := testsupport.MustPublication(t, st, provider.ID, "daily")
	buyer := testsupport.MustAccount(t, st, "acme", content.AccountBuyer)
	testsupport.MustEntry(t, st, pub.ID, "Bridge Closure Extended")
	q := testsupport.MustQueue(t, st, buyer.ID, "acme-wire", func(q *transmission.Queue) {
		q.SubPublications = []int64{pub.ID}
	})

	logger := logging.NewNop()
	engine := transmission.NewEngine(cfg, st, logger)
	d, err := daemon.New(cfg, daemon.Deps{
		Store:    st,
		Engine:   engine,
		API:      api.NewService(st, nil),
		Workflow: workflow.NewManager(cfg, engine, st, logger),
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.LogDir, "syndicate.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") || strings.Contains(err.Error(), "invalid argument") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	if info, err := os.Stat(socket); err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("socket mode = %v (err %v), want 0600", info, err)
	}
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("status = %+v, want running daemon", status)
	}

	list, err := client.ListQueues()
	if err != nil {
		t.Fatalf("ListQueues: %v", err)
	}
	if len(list.Queues) != 1 || list.Queues[0].ID != q.ID {
		t.Fatalf("queues = %+v", list.Queues)
	}

	refresh, err := client.Refresh(q.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refresh.Direct != 1 {
		t.Fatalf("refresh = %+v, want one direct item", refresh)
	}

	items, err := client.Items(ipc.ItemsRequest{QueueID: q.ID, Actions: []string{"S"}})
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items.Items) != 1 {
		t.Fatalf("items = %+v, want one scheduled item", items.Items)
	}

	setResp, err := client.SetAction([]int64{items.Items[0].ID}, "ignored")
	if err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if setResp.Updated != 1 {
		t.Fatalf("updated = %d, want 1", setResp.Updated)
	}
	if _, err := client.SetAction([]int64{items.Items[0].ID}, "bogus"); err == nil {
		t.Fatal("expected unknown action to fail")
	}

	counts, err := client.StatusCounts(ipc.StatusCountsRequest{QueueID: q.ID})
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if len(counts.Counts) == 0 {
		t.Fatal("expected at least one status row")
	}
	if _, err := client.StatusCounts(ipc.StatusCountsRequest{From: "2024-01-01"}); err == nil {
		t.Fatal("expected half-open range to fail")
	}

	if err := os.WriteFile(d.LogPath(), []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message == "" {
		t.Fatalf("notify = %+v, want unsent with message", notifyResp)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		status, err := client.Status()
		if err != nil {
			t.Fatalf("Status RPC failed: %v", err)
		}
		if !status.Running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected daemon to be stopped")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
