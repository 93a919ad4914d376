package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	lifecyclecommand "github.com/goliatone/go-webhook-lifecycle/command"
	lifecyclequery "github.com/goliatone/go-webhook-lifecycle/query"

	"github.com/spf13/cobra"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	shop       string
	appOptions appOptions
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	if opts == nil {
		opts = &rootOptions{}
	}
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Keep a shop's webhook subscriptions in line with declared webhooks",
		Long: `webhooks reads declared webhook subscriptions from a YAML file and
registers, destroys or recreates them for a shop. It also serves the
declared delivery paths.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the webhooks YAML config")
	cmd.PersistentFlags().StringVar(&opts.shop, "shop", "", "shop domain, overrides shop in the config")

	cmd.AddCommand(
		newAddCmd(opts),
		newDestroyCmd(opts),
		newRecreateCmd(opts),
		newPlanCmd(opts),
		newListCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// withApp loads the config, builds the app, and closes it after fn returns.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	config, err := LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, config, cmd.ErrOrStderr(), opts.appOptions)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Register declared webhooks and create or update them for the shop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				session, err := a.config.Session(opts.shop)
				if err != nil {
					return err
				}
				if err := a.facade.Commands().AddRegistrations.Execute(ctx, lifecyclecommand.AddRegistrationsMessage{}); err != nil {
					return err
				}
				results, err := a.registry.RegisterAll(ctx, session)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TOPIC\tOPERATION\tREMOTE ID\tSTATUS")
				for _, result := range results {
					status := "ok"
					if !result.Success {
						status = "failed"
						if result.Err != nil {
							status = "failed: " + result.Err.Error()
						}
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", result.Topic, result.Operation, result.RemoteID, status)
				}
				if flushErr := w.Flush(); flushErr != nil && err == nil {
					err = flushErr
				}
				return err
			})
		},
	}
}

func newDestroyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Unregister every declared webhook for the shop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				session, err := a.config.Session(opts.shop)
				if err != nil {
					return err
				}
				if err := a.facade.Commands().DestroyWebhooks.Execute(ctx, lifecyclecommand.DestroyWebhooksMessage{Session: session}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "destroyed %d webhook(s) for %s\n", len(a.config.Webhooks), session.Shop)
				return nil
			})
		},
	}
}

func newRecreateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recreate",
		Short: "Destroy and re-create every declared webhook for the shop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				session, err := a.config.Session(opts.shop)
				if err != nil {
					return err
				}
				if err := a.facade.Commands().RecreateWebhooks.Execute(ctx, lifecyclecommand.RecreateWebhooksMessage{Session: session}); err != nil {
					return err
				}
				return printRegistrations(ctx, cmd.OutOrStdout(), a, session.Shop)
			})
		},
	}
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the registration specs derived from the declared webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				specs, err := a.facade.Queries().PlanRegistrations.Query(ctx, lifecyclequery.PlanRegistrationsMessage{})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TOPIC\tMETHOD\tPATH\tFILTER")
				for _, spec := range specs {
					filter := "-"
					if spec.Filter != nil {
						filter = *spec.Filter
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.Topic, spec.DeliveryMethod, spec.Path, filter)
				}
				return w.Flush()
			})
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stored webhook registrations for the shop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				session, err := a.config.Session(opts.shop)
				if err != nil {
					return err
				}
				return printRegistrations(ctx, cmd.OutOrStdout(), a, session.Shop)
			})
		},
	}
}

func printRegistrations(ctx context.Context, out io.Writer, a *app, shop string) error {
	records, err := a.facade.Queries().ListRegistrations.Query(ctx, lifecyclequery.ListRegistrationsMessage{Shop: shop})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOPIC\tSTATUS\tCALLBACK URL\tREMOTE ID")
	for _, record := range records {
		remoteID := record.RemoteID
		if remoteID == "" {
			remoteID = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", record.Topic, record.Status, record.CallbackURL, remoteID)
	}
	return w.Flush()
}
