package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

var (
	_ gocmd.Querier[ListDeclarationsMessage, []core.Declaration]         = (*ListDeclarationsQuery)(nil)
	_ gocmd.Querier[PlanRegistrationsMessage, []core.RegistrationSpec]   = (*PlanRegistrationsQuery)(nil)
	_ gocmd.Querier[ListRegistrationsMessage, []core.RegistrationRecord] = (*ListRegistrationsQuery)(nil)
)
