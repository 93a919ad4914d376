package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	lifecyclecommand "github.com/goliatone/go-webhook-lifecycle/command"
	"github.com/goliatone/go-webhook-lifecycle/core"
	lifecyclequery "github.com/goliatone/go-webhook-lifecycle/query"
)

// LifecycleService is what RegisterLifecycle needs from a lifecycle Manager.
type LifecycleService interface {
	lifecyclecommand.LifecycleService
	lifecyclequery.DeclarationReader
	lifecyclequery.RegistrationPlanner
}

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so lifecycle commands can also run from a worker.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Subscriptions groups the dispatcher subscriptions created by
// RegisterLifecycle.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterLifecycle registers the lifecycle commands in the adapter's
// registry and subscribes commands and queries on the global dispatcher.
// Queries are only subscribed, so registry resolvers see commands alone. A
// nil store skips the registrations listing query.
func RegisterLifecycle(
	adapter *RegistryAdapter,
	service LifecycleService,
	store core.RegistrationStore,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: lifecycle service is required")
	}

	var subs Subscriptions
	registerCommand := func(sub commanddispatcher.Subscription, handler any) error {
		subs = append(subs, sub)
		if err := adapter.RegisterCommand(handler); err != nil {
			subs.Unsubscribe()
			return err
		}
		return nil
	}

	add := lifecyclecommand.NewAddRegistrationsCommand(service)
	if err := registerCommand(commanddispatcher.SubscribeCommand[lifecyclecommand.AddRegistrationsMessage](add, runnerOpts...), add); err != nil {
		return nil, err
	}
	destroy := lifecyclecommand.NewDestroyWebhooksCommand(service)
	if err := registerCommand(commanddispatcher.SubscribeCommand[lifecyclecommand.DestroyWebhooksMessage](destroy, runnerOpts...), destroy); err != nil {
		return nil, err
	}
	recreate := lifecyclecommand.NewRecreateWebhooksCommand(service)
	if err := registerCommand(commanddispatcher.SubscribeCommand[lifecyclecommand.RecreateWebhooksMessage](recreate, runnerOpts...), recreate); err != nil {
		return nil, err
	}

	declarations := lifecyclequery.NewListDeclarationsQuery(service)
	subs = append(subs, commanddispatcher.SubscribeQuery[lifecyclequery.ListDeclarationsMessage, []core.Declaration](declarations, runnerOpts...))
	plan := lifecyclequery.NewPlanRegistrationsQuery(service)
	subs = append(subs, commanddispatcher.SubscribeQuery[lifecyclequery.PlanRegistrationsMessage, []core.RegistrationSpec](plan, runnerOpts...))
	if store != nil {
		registrations := lifecyclequery.NewListRegistrationsQuery(store)
		subs = append(subs, commanddispatcher.SubscribeQuery[lifecyclequery.ListRegistrationsMessage, []core.RegistrationRecord](registrations, runnerOpts...))
	}
	return subs, nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
