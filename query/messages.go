package query

import "strings"

const (
	TypeListDeclarations  = "webhooks.query.declarations.list"
	TypePlanRegistrations = "webhooks.query.registrations.plan"
	TypeListRegistrations = "webhooks.query.registrations.list"
)

type ListDeclarationsMessage struct{}

func (ListDeclarationsMessage) Type() string { return TypeListDeclarations }

type PlanRegistrationsMessage struct{}

func (PlanRegistrationsMessage) Type() string { return TypePlanRegistrations }

type ListRegistrationsMessage struct {
	Shop string
}

func (ListRegistrationsMessage) Type() string { return TypeListRegistrations }

func (m ListRegistrationsMessage) Validate() error {
	if strings.TrimSpace(m.Shop) == "" {
		return queryValidationError("shop", "shop is required")
	}
	return nil
}
