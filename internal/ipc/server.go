package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"syndicate/internal/api"
	"syndicate/internal/daemon"
	"syndicate/internal/logging"
	"syndicate/internal/logs"
	"syndicate/internal/transmission"
)

// ServiceName is the JSON-RPC service name the daemon registers.
const ServiceName = "Syndicate"

// socketMode keeps the control socket private to the daemon's user.
const socketMode os.FileMode = 0o600

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
// Close ends open client connections as well as the listener.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer binds the socket at path, replacing a stale one, and registers
// the daemon's RPC methods.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	ctx, cancel := context.WithCancel(ctx)
	srv := &Server{
		path:   path,
		logger: logger,
		rpc:    rpc.NewServer(),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
	}
	if err := srv.rpc.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		cancel()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	listener, err := listenUnix(path)
	if err != nil {
		cancel()
		return nil, err
	}
	srv.listener = listener
	return srv, nil
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, socketMode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return listener, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("ipc socket ready", logging.String("socket", s.path))
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.WarnWithContext(s.logger, "ipc accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "CLI commands fall back to the local store"))
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting, closes client connections, waits for in-flight
// calls, and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(s.logger, "ipc socket not removed", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the socket before the next start"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx).DTO()
	return nil
}

func (s *service) ListQueues(_ QueueListRequest, resp *QueueListResponse) error {
	queues, err := s.daemon.Queues(s.ctx, api.Scope{})
	if err != nil {
		return err
	}
	resp.Queues = queues
	return nil
}

func (s *service) Items(req ItemsRequest, resp *ItemsResponse) error {
	actions := make([]transmission.Action, 0, len(req.Actions))
	for _, raw := range req.Actions {
		a, err := transmission.ParseAction(raw)
		if err != nil {
			return err
		}
		actions = append(actions, a)
	}
	items, err := s.daemon.Items(s.ctx, api.Scope{}, req.QueueID, actions, req.Limit)
	if err != nil {
		return err
	}
	resp.Items = items
	return nil
}

func (s *service) Refresh(req RefreshRequest, resp *RefreshResponse) error {
	res, err := s.daemon.Refresh(s.ctx, req.QueueID)
	if err != nil {
		return err
	}
	*resp = res
	return nil
}

// Transmit reports per-item failures in the response; only a failure to run
// the transmission at all is returned as an error.
func (s *service) Transmit(req TransmitRequest, resp *TransmitResponse) error {
	res, err := s.daemon.Transmit(s.ctx, req.QueueID)
	*resp = res
	if err != nil && res.Sent == 0 && res.Failed == 0 {
		return err
	}
	return nil
}

func (s *service) SetAction(req SetActionRequest, resp *SetActionResponse) error {
	action, err := transmission.ParseAction(req.Action)
	if err != nil {
		return err
	}
	updated, err := s.daemon.SetAction(s.ctx, req.IDs, action)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.logger.Info("item actions updated via IPC",
		logging.String(logging.FieldEventType, "items_set_action"),
		logging.String("action", action.Name()),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) StatusCounts(req StatusCountsRequest, resp *StatusCountsResponse) error {
	filter, err := transmission.ParseCountFilter(req.QueueID, req.Field, req.From, req.To, s.daemon.Location())
	if err != nil {
		return err
	}
	counts, err := s.daemon.StatusCounts(s.ctx, api.Scope{}, filter)
	if err != nil {
		return err
	}
	resp.Counts = counts
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, s.daemon.LogPath(), logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Filter: logs.Filter{QueueID: req.QueueID, CorrelationID: req.CorrelationID, MinLevel: req.MinLevel},
	})
	resp.Offset = result.Offset
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
