// Package cli wires the biztrack command line: configuration, logging,
// backend clients and the cobra command tree.
package cli

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"biztrack/internal/aggregate"
	"biztrack/internal/api"
	"biztrack/internal/cache"
	"biztrack/internal/config"
	"biztrack/internal/core"
	"biztrack/internal/events"
	"biztrack/internal/log"
	"biztrack/internal/metrics"
	"biztrack/internal/services"
	"biztrack/internal/session"
)

const userAgent = "biztrack-cli"

// App holds everything a command needs. Build it with NewApp and release it
// with Close.
type App struct {
	Config       *config.Config
	Logger       *log.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Backend      *api.Backend
	Sessions     *session.Provider
	Coordinator  *aggregate.Coordinator
	Subscription *services.SubscriptionService
	Caches       *cache.Manager

	store session.Store

	mu        sync.Mutex
	publisher events.Publisher
	ledger    *services.LedgerService
}

func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Discard()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client, err := api.New(cfg.BaseURL,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithLogger(logger),
		api.WithMetrics(m),
		api.WithUserAgent(userAgent))
	if err != nil {
		return nil, err
	}
	backend := api.NewBackend(client)

	store, err := session.NewStore(ctx, cfg.Session(), logger)
	if err != nil {
		return nil, err
	}
	sessions := session.NewProvider(store, logger)

	caches := cache.NewManager(logger)
	opts := []aggregate.Option{aggregate.WithLogger(logger), aggregate.WithMetrics(m)}
	if cfg.LookupCacheTTL > 0 {
		lookups := cache.NewLRUCache[core.NameIndex](cfg.LookupCacheSize, cfg.LookupCacheTTL)
		caches.Register(lookups)
		opts = append(opts, aggregate.WithCache(lookups))
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		Registry:     reg,
		Metrics:      m,
		Backend:      backend,
		Sessions:     sessions,
		Coordinator:  aggregate.New(aggregate.SourcesFrom(backend), sessions, opts...),
		Subscription: services.NewSubscriptionService(backend.Users, sessions, logger),
		Caches:       caches,
		store:        store,
	}, nil
}

// Publisher connects to the broker on first use. Without AMQP_URL, or when
// the broker is unreachable, events are dropped.
func (a *App) Publisher() events.Publisher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publisher != nil {
		return a.publisher
	}
	a.publisher = events.NoopPublisher{}
	if a.Config.AMQPURL == "" {
		return a.publisher
	}
	p, err := events.NewAMQPPublisher(a.Config.AMQPURL, a.Config.AMQPExchange, a.Config.AMQPQueue, a.Logger)
	if err != nil {
		a.Logger.Warn("Event publishing disabled", log.FieldError, err.Error())
		return a.publisher
	}
	a.publisher = p
	return p
}

// Ledger returns the save service, built on first use.
func (a *App) Ledger() *services.LedgerService {
	pub := a.Publisher()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ledger == nil {
		a.ledger = services.NewLedgerService(a.Backend, a.Sessions, pub,
			services.WithInvalidator(a.Coordinator),
			services.WithLedgerLogger(a.Logger),
			services.WithLedgerMetrics(a.Metrics))
	}
	return a.ledger
}

// Consumer opens a dedicated AMQP connection for reading events.
func (a *App) Consumer() (*events.AMQPPublisher, error) {
	if a.Config.AMQPURL == "" {
		return nil, errors.New("AMQP_URL is not set")
	}
	return events.NewAMQPPublisher(a.Config.AMQPURL, a.Config.AMQPExchange, a.Config.AMQPQueue, a.Logger)
}

func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
