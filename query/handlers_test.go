package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

func TestListDeclarationsQuery_ReturnsCurrentDeclarations(t *testing.T) {
	reader := stubDeclarationReader{declarations: []core.Declaration{
		{Topic: "orders/create", Path: "/webhooks/orders"},
	}}
	out, err := NewListDeclarationsQuery(reader).Query(context.Background(), ListDeclarationsMessage{})
	if err != nil {
		t.Fatalf("query declarations: %v", err)
	}
	if len(out) != 1 || out[0].Topic != "orders/create" {
		t.Fatalf("unexpected declarations %#v", out)
	}
}

func TestPlanRegistrationsQuery_DelegatesToPlanner(t *testing.T) {
	planner := stubPlanner{specs: []core.RegistrationSpec{{Topic: "orders/create", Path: "/webhooks/orders"}}}
	out, err := NewPlanRegistrationsQuery(planner).Query(context.Background(), PlanRegistrationsMessage{})
	if err != nil {
		t.Fatalf("plan registrations: %v", err)
	}
	if len(out) != 1 || out[0].Path != "/webhooks/orders" {
		t.Fatalf("unexpected plan %#v", out)
	}
}

func TestListRegistrationsQuery_ReadsStoreByShop(t *testing.T) {
	store := core.NewMemoryRegistrationStore()
	if _, err := store.Upsert(context.Background(), core.RegistrationRecord{
		Shop:     "demo.myshopify.com",
		Topic:    "orders/create",
		RemoteID: "gid://shopify/WebhookSubscription/1",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	out, err := NewListRegistrationsQuery(store).Query(context.Background(), ListRegistrationsMessage{Shop: "demo.myshopify.com"})
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(out) != 1 || out[0].RemoteID != "gid://shopify/WebhookSubscription/1" {
		t.Fatalf("unexpected registrations %#v", out)
	}
}

func TestListRegistrationsMessage_ValidateReturnsRichError(t *testing.T) {
	_, err := NewListRegistrationsQuery(core.NewMemoryRegistrationStore()).Query(context.Background(), ListRegistrationsMessage{})
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.WebhookErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.WebhookErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
}

func TestQueries_NilDependenciesReturnRichError(t *testing.T) {
	var q *ListDeclarationsQuery
	_, err := q.Query(context.Background(), ListDeclarationsMessage{})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if _, err := NewPlanRegistrationsQuery(nil).Query(context.Background(), PlanRegistrationsMessage{}); err == nil {
		t.Fatalf("expected planner dependency error")
	}
}

type stubDeclarationReader struct {
	declarations []core.Declaration
}

func (s stubDeclarationReader) CurrentDeclarations(context.Context) ([]core.Declaration, error) {
	return s.declarations, nil
}

type stubPlanner struct {
	specs []core.RegistrationSpec
}

func (s stubPlanner) PlanRegistrations(context.Context) ([]core.RegistrationSpec, error) {
	return s.specs, nil
}
