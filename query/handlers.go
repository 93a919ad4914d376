package query

import (
	"context"

	"github.com/goliatone/go-webhook-lifecycle/core"
)

type DeclarationReader interface {
	CurrentDeclarations(ctx context.Context) ([]core.Declaration, error)
}

type RegistrationPlanner interface {
	PlanRegistrations(ctx context.Context) ([]core.RegistrationSpec, error)
}

type RegistrationReader interface {
	ListByShop(ctx context.Context, shop string) ([]core.RegistrationRecord, error)
}

type ListDeclarationsQuery struct {
	reader DeclarationReader
}

func NewListDeclarationsQuery(reader DeclarationReader) *ListDeclarationsQuery {
	return &ListDeclarationsQuery{reader: reader}
}

func (q *ListDeclarationsQuery) Query(ctx context.Context, _ ListDeclarationsMessage) ([]core.Declaration, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: declaration reader is required")
	}
	return q.reader.CurrentDeclarations(ctx)
}

type PlanRegistrationsQuery struct {
	planner RegistrationPlanner
}

func NewPlanRegistrationsQuery(planner RegistrationPlanner) *PlanRegistrationsQuery {
	return &PlanRegistrationsQuery{planner: planner}
}

func (q *PlanRegistrationsQuery) Query(ctx context.Context, _ PlanRegistrationsMessage) ([]core.RegistrationSpec, error) {
	if q == nil || q.planner == nil {
		return nil, queryDependencyError("query: registration planner is required")
	}
	return q.planner.PlanRegistrations(ctx)
}

type ListRegistrationsQuery struct {
	reader RegistrationReader
}

func NewListRegistrationsQuery(reader RegistrationReader) *ListRegistrationsQuery {
	return &ListRegistrationsQuery{reader: reader}
}

func (q *ListRegistrationsQuery) Query(
	ctx context.Context,
	msg ListRegistrationsMessage,
) ([]core.RegistrationRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: registration reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListByShop(ctx, msg.Shop)
}
