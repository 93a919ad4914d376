package command

import (
	"strings"

	"github.com/goliatone/go-webhook-lifecycle/core"
)

const (
	TypeAddRegistrations = "webhooks.command.registrations.add"
	TypeDestroyWebhooks  = "webhooks.command.destroy"
	TypeRecreateWebhooks = "webhooks.command.recreate"
)

type AddRegistrationsMessage struct{}

func (AddRegistrationsMessage) Type() string { return TypeAddRegistrations }

type DestroyWebhooksMessage struct {
	Session core.Session
}

func (DestroyWebhooksMessage) Type() string { return TypeDestroyWebhooks }

func (m DestroyWebhooksMessage) Validate() error {
	return validateSession(m.Session)
}

type RecreateWebhooksMessage struct {
	Session core.Session
}

func (RecreateWebhooksMessage) Type() string { return TypeRecreateWebhooks }

func (m RecreateWebhooksMessage) Validate() error {
	return validateSession(m.Session)
}

func validateSession(session core.Session) error {
	if strings.TrimSpace(session.Shop) == "" {
		return commandValidationError("shop", "shop is required")
	}
	return nil
}
