package api

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"irops/internal/auth"
	"irops/internal/config"
	"irops/internal/engine"
	"irops/internal/store"
	"irops/internal/webhooks"
)

type Server struct {
	Cfg    config.Config
	Store  store.Store
	Engine *engine.Engine
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker

	recoverLimiter *rate.Limiter
}

// NewServer wires the store, solver engine, broker and webhook publisher.
// With no DATABASE_URL the store is in-memory; with no REDIS_URL the
// broker is in-process.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = pg
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Cfg:            cfg,
		Store:          s,
		Engine:         eng,
		Pub:            webhooks.NewPublisher(s),
		Auth:           auth.NewVerifierFromEnv(),
		Broker:         broker,
		recoverLimiter: rate.NewLimiter(rate.Limit(cfg.RecoverRPS), recoverBurst(cfg.RecoverRPS)),
	}, nil
}

func recoverBurst(rps float64) int {
	b := int(rps * 2)
	if b < 1 {
		b = 1
	}
	return b
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
