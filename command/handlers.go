package command

import (
	"context"

	"github.com/goliatone/go-webhook-lifecycle/core"
)

// LifecycleService is the mutating surface of a lifecycle Manager.
type LifecycleService interface {
	AddRegistrations(ctx context.Context) error
	DestroyWebhooks(ctx context.Context, session core.Session) error
	RecreateWebhooks(ctx context.Context, session core.Session) error
}

type AddRegistrationsCommand struct {
	service LifecycleService
}

func NewAddRegistrationsCommand(service LifecycleService) *AddRegistrationsCommand {
	return &AddRegistrationsCommand{service: service}
}

func (c *AddRegistrationsCommand) Execute(ctx context.Context, _ AddRegistrationsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: add registrations service is required")
	}
	return c.service.AddRegistrations(ctx)
}

type DestroyWebhooksCommand struct {
	service LifecycleService
}

func NewDestroyWebhooksCommand(service LifecycleService) *DestroyWebhooksCommand {
	return &DestroyWebhooksCommand{service: service}
}

func (c *DestroyWebhooksCommand) Execute(ctx context.Context, msg DestroyWebhooksMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: destroy webhooks service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.DestroyWebhooks(ctx, msg.Session)
}

type RecreateWebhooksCommand struct {
	service LifecycleService
}

func NewRecreateWebhooksCommand(service LifecycleService) *RecreateWebhooksCommand {
	return &RecreateWebhooksCommand{service: service}
}

func (c *RecreateWebhooksCommand) Execute(ctx context.Context, msg RecreateWebhooksMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: recreate webhooks service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.RecreateWebhooks(ctx, msg.Session)
}
