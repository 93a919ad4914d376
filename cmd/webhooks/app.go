package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	lifecycle "github.com/goliatone/go-webhook-lifecycle"
	"github.com/goliatone/go-webhook-lifecycle/adapters/gologger"
	promadapter "github.com/goliatone/go-webhook-lifecycle/adapters/prometheus"
	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/goliatone/go-webhook-lifecycle/providers/shopify"
	sqlstore "github.com/goliatone/go-webhook-lifecycle/store/sql"

	persistence "github.com/goliatone/go-persistence-bun"
	glog "github.com/goliatone/go-logger/glog"
)

const deliveriesMetric = "webhooks.deliveries.total"

// app holds everything one CLI invocation needs. Close releases the
// database.
type app struct {
	config        Config
	logger        glog.Logger
	provider      *glog.BaseLogger
	client        *persistence.Client
	stores        *sqlstore.RepositoryFactory
	registrations core.RegistrationStore
	registry      *shopify.Registry
	handlers      *core.HandlerRegistry
	recorder      *promadapter.Recorder
	manager       *lifecycle.Manager
	facade        *lifecycle.Facade
}

type appOptions struct {
	httpClient *http.Client
}

func newApp(ctx context.Context, config Config, logs io.Writer, opts appOptions) (*app, error) {
	provider := newLoggerProvider(logs, config.LogLevel)
	_, logger := gologger.Resolve("webhooks.cli", provider, nil)

	client, err := sqlstore.Open(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{config: config, logger: logger, provider: provider, client: client}
	if err := a.wire(opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(opts appOptions) error {
	stores, err := sqlstore.NewRepositoryFactoryFromPersistence(a.client)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}
	a.stores = stores
	a.registrations = stores.RegistrationStore()

	if a.config.Cache.Enabled {
		cacheConfig := repositorycache.DefaultConfig()
		if a.config.Cache.TTL > 0 {
			cacheConfig.TTL = a.config.Cache.TTL
		}
		service, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return fmt.Errorf("build registration cache: %w", err)
		}
		cached, err := sqlstore.NewCachedRegistrationStore(a.registrations, service)
		if err != nil {
			return err
		}
		a.registrations = cached
	}

	httpClient := opts.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	registry, err := shopify.NewRegistry(shopify.RegistryConfig{
		AppURL:       a.config.AppURL,
		APIVersion:   a.config.APIVersion,
		AdminBaseURL: a.config.AdminBaseURL,
		Client:       httpClient,
		Store:        a.registrations,
		Logger:       a.provider.GetLogger("webhooks.shopify"),
	})
	if err != nil {
		return err
	}
	a.registry = registry

	a.recorder = promadapter.NewRecorder(nil, promadapter.WithIgnoredTags("shop"))
	a.handlers = core.NewHandlerRegistry()
	for _, declaration := range a.config.Webhooks {
		if err := a.handlers.Register(declaration.Topic, a.deliveryHandler()); err != nil {
			return err
		}
	}

	managerOpts := append(gologger.ManagerOptions(a.provider, nil),
		lifecycle.WithRegistryClient(a.registry),
		lifecycle.WithHandlerResolver(a.handlers),
		lifecycle.WithMetricsRecorder(a.recorder),
		lifecycle.WithConfigurationProvider(core.NewStaticConfigurationProvider(a.config.Webhooks...)),
	)
	manager, err := lifecycle.NewManager(lifecycle.Config{
		ServiceName: a.config.ServiceName,
		AppURL:      a.config.AppURL,
	}, managerOpts...)
	if err != nil {
		return err
	}
	a.manager = manager

	facade, err := lifecycle.NewFacade(manager, lifecycle.WithRegistrationReader(a.registrations))
	if err != nil {
		return err
	}
	a.facade = facade
	return nil
}

// deliveryHandler acknowledges deliveries for declared topics. Applications
// embedding the library register their own handlers instead.
func (a *app) deliveryHandler() core.WebhookHandler {
	return core.WebhookHandlerFunc(func(ctx context.Context, delivery core.Delivery) error {
		a.logger.Info("webhook delivery received",
			"topic", delivery.Topic,
			"shop", delivery.ShopDomain,
			"webhook_id", delivery.WebhookID,
			"bytes", len(delivery.Body),
		)
		a.recorder.IncCounter(ctx, deliveriesMetric, 1, map[string]string{
			"topic": delivery.Topic,
			"shop":  delivery.ShopDomain,
		})
		return nil
	})
}

// newLoggerProvider builds the root console logger. Fatal only logs so a
// failing command still closes the database.
func newLoggerProvider(out io.Writer, level string) *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithName("webhooks"),
		glog.WithWriter(out),
		glog.WithLevel(level),
		glog.WithLoggerTypeConsole(),
		glog.WithFatalBehavior(glog.FatalBehaviorLogOnly),
	)
}

func (a *app) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
