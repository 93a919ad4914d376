package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	lifecyclecommand "github.com/goliatone/go-webhook-lifecycle/command"
	"github.com/goliatone/go-webhook-lifecycle/core"
	lifecyclequery "github.com/goliatone/go-webhook-lifecycle/query"
)

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "webhooks.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(lifecyclecommand.AddRegistrationsMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegisterLifecycleDispatchesToService(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	svc := &stubLifecycleService{
		declarations: []core.Declaration{{Topic: "orders/create", Path: "/webhooks/orders"}},
	}
	store := core.NewMemoryRegistrationStore()
	if _, err := store.Upsert(context.Background(), core.RegistrationRecord{Shop: "demo.myshopify.com", Topic: "orders/create"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	subs, err := RegisterLifecycle(adapter, svc, store)
	if err != nil {
		t.Fatalf("register lifecycle: %v", err)
	}
	defer subs.Unsubscribe()
	if len(subs) != 6 {
		t.Fatalf("expected six subscriptions, got %d", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	ctx := context.Background()
	session := core.Session{Shop: "demo.myshopify.com", AccessToken: "token"}
	if err := Dispatch(ctx, lifecyclecommand.AddRegistrationsMessage{}); err != nil {
		t.Fatalf("dispatch add: %v", err)
	}
	if err := Dispatch(ctx, lifecyclecommand.RecreateWebhooksMessage{Session: session}); err != nil {
		t.Fatalf("dispatch recreate: %v", err)
	}
	if len(svc.calls) != 2 || svc.calls[0] != "add" || svc.calls[1] != "recreate" {
		t.Fatalf("unexpected service calls %v", svc.calls)
	}
	if err := Dispatch(ctx, lifecyclecommand.DestroyWebhooksMessage{}); err == nil {
		t.Fatalf("expected invalid destroy message to be rejected")
	}

	declarations, err := Query[lifecyclequery.ListDeclarationsMessage, []core.Declaration](ctx, lifecyclequery.ListDeclarationsMessage{})
	if err != nil {
		t.Fatalf("query declarations: %v", err)
	}
	if len(declarations) != 1 {
		t.Fatalf("expected one declaration, got %d", len(declarations))
	}
	records, err := Query[lifecyclequery.ListRegistrationsMessage, []core.RegistrationRecord](ctx, lifecyclequery.ListRegistrationsMessage{Shop: "demo.myshopify.com"})
	if err != nil {
		t.Fatalf("query registrations: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one registration record, got %d", len(records))
	}
}

func TestQueueResolverMirrorsLifecycleCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}

	subs, err := RegisterLifecycle(adapter, &stubLifecycleService{}, nil)
	if err != nil {
		t.Fatalf("register lifecycle: %v", err)
	}
	defer subs.Unsubscribe()
	if len(subs) != 5 {
		t.Fatalf("expected registrations query to be skipped without a store, got %d subscriptions", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	for _, messageType := range []string{
		lifecyclecommand.TypeAddRegistrations,
		lifecyclecommand.TypeDestroyWebhooks,
		lifecyclecommand.TypeRecreateWebhooks,
	} {
		if _, ok := queueRegistry.Get(messageType); !ok {
			t.Fatalf("expected %s to be mirrored into queue registry", messageType)
		}
	}
	if _, ok := queueRegistry.Get(lifecyclequery.TypeListDeclarations); ok {
		t.Fatalf("expected queries to stay out of the queue registry")
	}
}

func TestRegisterLifecycleRequiresDependencies(t *testing.T) {
	if _, err := RegisterLifecycle(nil, &stubLifecycleService{}, nil); err == nil {
		t.Fatalf("expected missing registry error")
	}
	if _, err := RegisterLifecycle(NewRegistryAdapter(nil), nil, nil); err == nil {
		t.Fatalf("expected missing service error")
	}
}

type stubLifecycleService struct {
	calls        []string
	declarations []core.Declaration
}

func (s *stubLifecycleService) AddRegistrations(context.Context) error {
	s.calls = append(s.calls, "add")
	return nil
}

func (s *stubLifecycleService) DestroyWebhooks(context.Context, core.Session) error {
	s.calls = append(s.calls, "destroy")
	return nil
}

func (s *stubLifecycleService) RecreateWebhooks(context.Context, core.Session) error {
	s.calls = append(s.calls, "recreate")
	return nil
}

func (s *stubLifecycleService) CurrentDeclarations(context.Context) ([]core.Declaration, error) {
	return s.declarations, nil
}

func (s *stubLifecycleService) PlanRegistrations(context.Context) ([]core.RegistrationSpec, error) {
	return nil, nil
}
