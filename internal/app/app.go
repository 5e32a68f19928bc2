// Package app builds the component graph shared by the binaries from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/marcelsud/priorauth-notify/config"
	"github.com/marcelsud/priorauth-notify/decision"
	decisionmemory "github.com/marcelsud/priorauth-notify/decision/memory"
	decisionpostgres "github.com/marcelsud/priorauth-notify/decision/postgres"
	decisionredis "github.com/marcelsud/priorauth-notify/decision/redis"
	"github.com/marcelsud/priorauth-notify/delivery"
	"github.com/marcelsud/priorauth-notify/dispatch"
	"github.com/marcelsud/priorauth-notify/hooks"
	"github.com/marcelsud/priorauth-notify/metrics"
	"github.com/marcelsud/priorauth-notify/notification"
	"github.com/marcelsud/priorauth-notify/policy"
	"github.com/marcelsud/priorauth-notify/subscription"
	"github.com/marcelsud/priorauth-notify/subscription/memory"
	"github.com/marcelsud/priorauth-notify/subscription/postgres"
	subscriptionredis "github.com/marcelsud/priorauth-notify/subscription/redis"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Store is a subscription repository that can also report status counts
type Store interface {
	subscription.Repository
	metrics.Collector
}

// migrator is implemented by stores that own a schema
type migrator interface {
	CreateTable(ctx context.Context) error
}

/* App holds every component wired from one Config
 * Uses pointer semantics as it's an API, not data
 */
type App struct {
	Config        *config.Config
	Subscriptions Store
	Decisions     decision.Store
	Policies      *policy.Loader
	Engine        *delivery.Engine
	Builder       *notification.Builder
	Metrics       *metrics.OTelExporter
	Dispatcher    *dispatch.Dispatcher
	Registry      *subscription.Registry
	Hooks         *hooks.Hooks
}

// New connects the configured store and wires the delivery pipeline on top of it
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if err := a.openStores(); err != nil {
		return nil, err
	}

	a.Policies = policy.NewLoader()
	if cfg.PoliciesFile != "" {
		if err := a.Policies.Load(cfg.PoliciesFile); err != nil {
			a.Subscriptions.Close(ctx)
			return nil, err
		}
	}

	baseURL, err := url.Parse(cfg.PublicBaseURL)
	if err != nil {
		a.Subscriptions.Close(ctx)
		return nil, fmt.Errorf("parsing public base url: %w", err)
	}
	a.Builder = notification.NewBuilder(baseURL, cfg.TopicURL)

	a.Metrics, err = metrics.NewOTelExporter(a.Subscriptions, metrics.WithRegistry(promclient.NewRegistry()))
	if err != nil {
		a.Subscriptions.Close(ctx)
		return nil, err
	}

	a.Engine = delivery.NewEngine(nil, delivery.WithBreaker(cfg.BreakerThreshold, cfg.BreakerOpenTimeout))
	a.Dispatcher = dispatch.NewDispatcher(a.Subscriptions, a.Builder, a.Engine, a.Policies,
		dispatch.WithConcurrency(cfg.DispatchConcurrency),
		dispatch.WithRecorder(a.Metrics),
	)
	a.Registry = subscription.NewRegistry(a.Subscriptions, a.Dispatcher)
	a.Hooks = hooks.New(a.Registry, a.Dispatcher)

	log.Info().
		Str("store_driver", cfg.StoreDriver).
		Int("dispatch_concurrency", cfg.DispatchConcurrency).
		Msg("Components wired")
	return a, nil
}

func (a *App) openStores() error {
	cfg := a.Config
	switch cfg.StoreDriver {
	case "redis":
		repo, err := subscriptionredis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		a.Subscriptions = repo
		a.Decisions = decisionredis.NewStore(repo.GetClient())
	case "postgres":
		repo, err := postgres.NewRepository(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		a.Subscriptions = repo
		a.Decisions = decisionpostgres.NewStore(repo.DB)
	case "memory", "":
		a.Subscriptions = memory.NewRepository()
		a.Decisions = decisionmemory.NewStore()
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	return nil
}

// Migrate creates the tables of stores that own a schema; it is a no-op otherwise
func (a *App) Migrate(ctx context.Context) error {
	for _, store := range []any{a.Subscriptions, a.Decisions} {
		if m, ok := store.(migrator); ok {
			if err := m.CreateTable(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close waits for in-flight dispatches, then releases the engine, the exporter and the store
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Hooks.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for dispatches: %w", err))
	}
	a.Engine.Close()
	if err := a.Metrics.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Subscriptions.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
