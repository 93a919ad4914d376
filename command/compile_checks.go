package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AddRegistrationsMessage] = (*AddRegistrationsCommand)(nil)
	_ gocmd.Commander[DestroyWebhooksMessage]  = (*DestroyWebhooksCommand)(nil)
	_ gocmd.Commander[RecreateWebhooksMessage] = (*RecreateWebhooksCommand)(nil)
)
