package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-webhook-lifecycle/providers/shopify"
	"github.com/goliatone/go-webhook-lifecycle/webhooks"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	var register bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve declared delivery paths and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if register {
					if err := a.manager.AddRegistrations(ctx); err != nil {
						return err
					}
				}
				router, err := newRouter(ctx, a)
				if err != nil {
					return err
				}
				addr := listen
				if addr == "" {
					addr = a.config.Listen
				}
				return serve(ctx, a, addr, router)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides listen in the config")
	cmd.Flags().BoolVar(&register, "register", true, "register declared webhooks with the local registry before serving")
	return cmd
}

// newRouter mounts the delivery processor on every planned path and the
// metrics endpoint on /metrics.
func newRouter(ctx context.Context, a *app) (chi.Router, error) {
	if a.config.WebhookSecret == "" {
		return nil, fmt.Errorf("webhook_secret is required to serve deliveries")
	}
	specs, err := a.manager.PlanRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(specs))
	for _, spec := range specs {
		paths = append(paths, spec.Path)
	}

	processor := shopify.NewProcessor(
		shopify.DefaultWebhookConfig(a.config.WebhookSecret),
		a.stores.DeliveryStore(),
		a.handlers,
	)
	router := chi.NewRouter()
	webhooks.Mount(router, webhooks.NewHTTPHandler(shopify.ProviderID, processor), paths...)
	router.Method(http.MethodGet, "/metrics", a.recorder.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router, nil
}

func serve(ctx context.Context, a *app, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		a.logger.Info("webhooks server listening", "addr", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("webhooks server shutting down", "addr", addr)
		return server.Shutdown(shutdownCtx)
	}
}
