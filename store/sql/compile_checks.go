package sqlstore

import (
	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/goliatone/go-webhook-lifecycle/webhooks"
)

var (
	_ core.RegistrationStore  = (*RegistrationStore)(nil)
	_ core.RegistrationStore  = (*CachedRegistrationStore)(nil)
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
)
