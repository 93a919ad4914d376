package lifecycle

import (
	"fmt"

	lifecyclecommand "github.com/goliatone/go-webhook-lifecycle/command"
	"github.com/goliatone/go-webhook-lifecycle/core"
	lifecyclequery "github.com/goliatone/go-webhook-lifecycle/query"
)

type CommandQueryService interface {
	lifecyclecommand.LifecycleService
	lifecyclequery.DeclarationReader
	lifecyclequery.RegistrationPlanner
}

type Commands struct {
	AddRegistrations *lifecyclecommand.AddRegistrationsCommand
	DestroyWebhooks  *lifecyclecommand.DestroyWebhooksCommand
	RecreateWebhooks *lifecyclecommand.RecreateWebhooksCommand
}

type Queries struct {
	ListDeclarations  *lifecyclequery.ListDeclarationsQuery
	PlanRegistrations *lifecyclequery.PlanRegistrationsQuery
	// ListRegistrations is nil when no registration reader is available.
	ListRegistrations *lifecyclequery.ListRegistrationsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	registrationReader lifecyclequery.RegistrationReader
}

func WithRegistrationReader(reader lifecyclequery.RegistrationReader) FacadeOption {
	return func(options *facadeOptions) {
		options.registrationReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("lifecycle: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.registrationReader
	if reader == nil {
		reader = resolveRegistrationReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		AddRegistrations: lifecyclecommand.NewAddRegistrationsCommand(service),
		DestroyWebhooks:  lifecyclecommand.NewDestroyWebhooksCommand(service),
		RecreateWebhooks: lifecyclecommand.NewRecreateWebhooksCommand(service),
	}
	facade.queries = Queries{
		ListDeclarations:  lifecyclequery.NewListDeclarationsQuery(service),
		PlanRegistrations: lifecyclequery.NewPlanRegistrationsQuery(service),
	}
	if reader != nil {
		facade.queries.ListRegistrations = lifecyclequery.NewListRegistrationsQuery(reader)
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveRegistrationReader falls back to the manager's registry client
// when it exposes its registration store.
func resolveRegistrationReader(service CommandQueryService) lifecyclequery.RegistrationReader {
	if reader, ok := service.(lifecyclequery.RegistrationReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ManagerDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	storeProvider, ok := deps.RegistryClient.(interface {
		RegistrationStore() core.RegistrationStore
	})
	if !ok {
		return nil
	}
	store := storeProvider.RegistrationStore()
	if store == nil {
		return nil
	}
	return store
}

var _ CommandQueryService = (*core.Manager)(nil)
