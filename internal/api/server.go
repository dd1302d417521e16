package api

import (
	"context"
	"io"
	"log"
	"strings"

	"freightplan/internal/auth"
	"freightplan/internal/config"
	"freightplan/internal/store"
	"freightplan/internal/traveltime"
	"freightplan/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Travel traveltime.Provider
	Config config.Config
	Auth   *auth.Verifier

	closers []io.Closer
}

// NewServer wires storage, events and the travel-time provider from cfg. An
// empty DatabaseURL selects the in-memory store and an empty RedisURL the
// in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	v, err := auth.New(cfg.Auth)
	if err != nil {
		return nil, err
	}
	s := &Server{Config: cfg, Auth: v}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s.Store = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Printf("migrations: %v", err)
			}
		}
		s.Store = sp
		s.closers = append(s.closers, sp)
	}

	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			s.Broker = rb
			s.closers = append(s.closers, rb)
		} else {
			log.Printf("redis broker unavailable, using in-memory: %v", err)
			s.Broker = NewBroker()
		}
	} else {
		s.Broker = NewBroker()
	}

	s.Travel = s.newProvider()
	s.Pub = webhooks.NewPublisher(s.Store)
	return s, nil
}

// newProvider prefers OpenRouteService when a key is configured and falls
// back to great-circle estimates. Redis, when present, caches either.
func (s *Server) newProvider() traveltime.Provider {
	var p traveltime.Provider = traveltime.Haversine{SpeedKMH: s.Config.Travel.SpeedKMH}
	if s.Config.Travel.ORSAPIKey != "" {
		p = traveltime.NewORS(s.Config.Travel.ORSBaseURL, s.Config.Travel.ORSAPIKey, s.Config.Travel.ORSRPS)
	}
	if s.Config.RedisURL == "" {
		return p
	}
	c, err := traveltime.NewRedisCache(s.Config.RedisURL, p, s.Config.Travel.CacheTTL)
	if err != nil {
		log.Printf("travel-time cache unavailable: %v", err)
		return p
	}
	s.closers = append(s.closers, c)
	return c
}

// Close releases database and Redis connections.
func (s *Server) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.Webhooks.MaxAttempts)
}

// publish fans an event out to live streams and webhook subscribers.
func (s *Server) publish(ctx context.Context, tenant, eventType string, data map[string]any) {
	s.Broker.Publish(tenant, SSEEvent{Type: eventType, Data: data})
	if s.Pub != nil {
		s.Pub.Emit(ctx, tenant, eventType, data)
	}
}
