package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"syndicate/internal/api"
	"syndicate/internal/config"
	"syndicate/internal/logging"
	"syndicate/internal/services"
	"syndicate/internal/transmission"
)

const requestIDHeader = "X-Request-ID"

type apiServer struct {
	cfg    *config.Config
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		cfg:    cfg,
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.withCorrelation(srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.adminOnly(s.handleStatus))
	mux.HandleFunc("GET /api/transmission-queues", s.scoped(s.handleQueues))
	mux.HandleFunc("GET /api/transmission-queues/{id}/items", s.scoped(s.handleItems))
	mux.HandleFunc("POST /api/transmission-queues/{id}/items/action", s.adminOnly(s.handleSetAction))
	mux.HandleFunc("POST /api/transmission-queues/{id}/refresh", s.adminOnly(s.handleRefresh))
	mux.HandleFunc("POST /api/transmission-queues/{id}/transmit", s.adminOnly(s.handleTransmit))
	mux.HandleFunc("GET /api/reports/status-counts", s.scoped(s.handleStatusCounts))
	mux.HandleFunc("GET /api/entries/{id}", s.adminOnly(s.handleEntry))
	mux.HandleFunc("GET /api/entries/{id}/entities", s.adminOnly(s.handleEntities))
	return mux
}

// withCorrelation tags every request with a correlation id, reusing the
// caller's X-Request-ID when present.
func (s *apiServer) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := services.WithRequestID(r.Context(), id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.log()).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.log(), "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "HTTP API unavailable until restart"),
			)
		}
	}()

	s.log().Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()).DTO())
}

func (s *apiServer) handleQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.daemon.Queues(r.Context(), principalFrom(r.Context()).scope)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Queues: queues})
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	actions, err := parseActions(r.URL.Query()["action"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	items, err := s.daemon.Items(r.Context(), principalFrom(r.Context()).scope, id, actions, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: items})
}

type setActionRequest struct {
	IDs    []int64 `json:"ids"`
	Action string  `json:"action"`
}

func (s *apiServer) handleSetAction(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.pathID(w, r); !ok {
		return
	}
	var req setActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action, err := transmission.ParseAction(req.Action)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.daemon.SetAction(r.Context(), req.IDs, action)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	res, err := s.daemon.Refresh(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleTransmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	res, err := s.daemon.Transmit(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCountFilter(r, s.cfg.Location())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	counts, err := s.daemon.StatusCounts(r.Context(), principalFrom(r.Context()).scope, filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatusCountsResponse{Counts: counts})
}

func (s *apiServer) handleEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	entry, err := s.daemon.api.Entry(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *apiServer) handleEntities(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	groups, err := s.daemon.EntityDisplay(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EntityDisplayResponse{EntryID: id, Groups: groups})
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func parseActions(values []string) ([]transmission.Action, error) {
	var actions []transmission.Action
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			a, err := transmission.ParseAction(part)
			if err != nil {
				return nil, err
			}
			actions = append(actions, a)
		}
	}
	return actions, nil
}

func parseCountFilter(r *http.Request, loc *time.Location) (transmission.CountFilter, error) {
	q := r.URL.Query()
	var queueID int64
	if raw := strings.TrimSpace(q.Get("queue")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return transmission.CountFilter{}, errors.New("invalid queue")
		}
		queueID = id
	}
	return transmission.ParseCountFilter(queueID, q.Get("field"), q.Get("from"), q.Get("to"), loc)
}

func statusForError(err error) int {
	switch services.Classify(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "configuration":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.log()), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the daemon log for the correlation id"),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
