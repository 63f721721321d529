package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"syndicate/internal/api"
	"syndicate/internal/config"
	"syndicate/internal/delivery"
	"syndicate/internal/editorial"
	"syndicate/internal/events"
	"syndicate/internal/ingest"
	"syndicate/internal/logging"
	"syndicate/internal/notifications"
	"syndicate/internal/store"
	"syndicate/internal/tagging"
	"syndicate/internal/transmission"
)

// Stack holds the services shared by the daemon and offline CLI commands.
type Stack struct {
	Config    *config.Config
	Store     *store.Store
	Publisher events.Publisher
	Notifier  notifications.Service
	Engine    *transmission.Engine
	Tagger    *tagging.Service
	Editorial *editorial.Service
	API       *api.Service
	Processor *ingest.Processor

	closers []func() error
}

// NewStack opens the store and wires the domain services around it. With
// events enabled, the Redis publisher must answer a ping.
func NewStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Stack{Config: cfg, Store: st, closers: []func() error{st.Close}}

	s.Publisher = events.Noop{}
	if cfg.Events.Enabled {
		pub, err := events.NewRedisPublisher(&redis.Options{Addr: cfg.Events.RedisAddr, DB: cfg.Events.RedisDB}, cfg.Events.Namespace)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("events publisher: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = pub.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = pub.Close()
			s.Close()
			return nil, fmt.Errorf("events publisher: ping %s: %w", cfg.Events.RedisAddr, err)
		}
		s.Publisher = pub
		s.closers = append(s.closers, pub.Close)
	}

	s.Notifier = notifications.NewService(cfg)
	s.Engine = transmission.NewEngine(cfg, st, logger,
		transmission.WithUploaders(delivery.NewFactory(cfg)),
		transmission.WithPublisher(s.Publisher),
		transmission.WithNotifier(s.Notifier),
	)
	s.Tagger = tagging.NewService(st, s.Publisher, logger)
	s.Editorial = editorial.NewService(cfg, st, s.Engine, logger, editorial.WithPublisher(s.Publisher))
	s.API = api.NewService(st, s.Tagger)
	s.Processor = ingest.NewProcessor(cfg.Paths.InboxDir, st, s.Editorial, s.Tagger, logger)
	return s, nil
}

// Close releases the publisher and store in reverse order of opening.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
