package core

import (
	"reflect"
	"testing"
)

func TestDeriveSpec_AddressPathStripsSchemeAndHost(t *testing.T) {
	spec, err := DeriveSpec(Declaration{
		Topic:   "orders/updated",
		Address: "https://x.example.com/webhooks/orders_updated?token=abc",
	}, handlersFor("orders/updated"))
	if err != nil {
		t.Fatalf("derive spec: %v", err)
	}
	if spec.Path != "/webhooks/orders_updated" {
		t.Fatalf("expected /webhooks/orders_updated, got %q", spec.Path)
	}
	if spec.DeliveryMethod != DeliveryMethodHTTP {
		t.Fatalf("expected http delivery, got %q", spec.DeliveryMethod)
	}
	if spec.Topic != "orders/updated" {
		t.Fatalf("expected topic orders/updated, got %q", spec.Topic)
	}
}

func TestDeriveSpec_ExplicitPathUsedVerbatim(t *testing.T) {
	spec, err := DeriveSpec(Declaration{
		Topic:   "orders/updated",
		Path:    "webhooks/orders_updated",
		Address: "https://x.example.com/ignored",
	}, handlersFor("orders/updated"))
	if err != nil {
		t.Fatalf("derive spec: %v", err)
	}
	if spec.Path != "webhooks/orders_updated" {
		t.Fatalf("expected verbatim path, got %q", spec.Path)
	}
}

func TestDeriveSpec_MissingPathAndAddress(t *testing.T) {
	_, err := DeriveSpec(Declaration{Topic: "orders/updated"}, handlersFor("orders/updated"))
	if !IsMissingWebhookPath(err) {
		t.Fatalf("expected missing path error, got %v", err)
	}

	_, err = DeriveSpec(Declaration{Topic: "orders/updated", Address: "https://x.example.com"}, handlersFor("orders/updated"))
	if !IsMissingWebhookPath(err) {
		t.Fatalf("expected missing path error for address without path, got %v", err)
	}
}

func TestDeriveSpec_PathCheckedBeforeHandler(t *testing.T) {
	_, err := DeriveSpec(Declaration{Topic: "orders/updated"}, NewHandlerRegistry())
	if !IsMissingWebhookPath(err) {
		t.Fatalf("expected missing path to win over missing handler, got %v", err)
	}
}

func TestDeriveSpec_MissingHandler(t *testing.T) {
	_, err := DeriveSpec(Declaration{Topic: "orders/updated", Path: "/webhooks"}, handlersFor("products/update"))
	if !IsMissingWebhookHandler(err) {
		t.Fatalf("expected missing handler error, got %v", err)
	}
	_, err = DeriveSpec(Declaration{Topic: "orders/updated", Path: "/webhooks"}, nil)
	if !IsMissingWebhookHandler(err) {
		t.Fatalf("expected missing handler error for nil resolver, got %v", err)
	}
}

func TestDeriveSpec_InvalidDeclaration(t *testing.T) {
	_, err := DeriveSpec(Declaration{Path: "/webhooks"}, handlersFor("orders/updated"))
	if !IsInvalidDeclaration(err) {
		t.Fatalf("expected invalid declaration for empty topic, got %v", err)
	}
	_, err = DeriveSpec(Declaration{Topic: "orders/updated", Address: "://bad"}, handlersFor("orders/updated"))
	if !IsInvalidDeclaration(err) {
		t.Fatalf("expected invalid declaration for unparsable address, got %v", err)
	}
}

func TestDeriveSpec_PassThroughKeepsAbsenceDistinctFromEmpty(t *testing.T) {
	resolver := handlersFor("orders/updated")

	absent, err := DeriveSpec(Declaration{Topic: "orders/updated", Path: "/webhooks"}, resolver)
	if err != nil {
		t.Fatalf("derive spec: %v", err)
	}
	if absent.Fields != nil || absent.MetafieldNamespaces != nil || absent.Filter != nil {
		t.Fatalf("expected absent pass-through fields to stay nil, got %#v", absent)
	}

	empty, err := DeriveSpec(Declaration{
		Topic:               "orders/updated",
		Path:                "/webhooks",
		Fields:              []string{},
		MetafieldNamespaces: []string{},
		Filter:              StringPtr(""),
	}, resolver)
	if err != nil {
		t.Fatalf("derive spec: %v", err)
	}
	if empty.Fields == nil || len(empty.Fields) != 0 {
		t.Fatalf("expected empty non-nil fields, got %#v", empty.Fields)
	}
	if empty.MetafieldNamespaces == nil || len(empty.MetafieldNamespaces) != 0 {
		t.Fatalf("expected empty non-nil metafield namespaces, got %#v", empty.MetafieldNamespaces)
	}
	if empty.Filter == nil || *empty.Filter != "" {
		t.Fatalf("expected empty filter pointer, got %#v", empty.Filter)
	}
}

func TestDeriveSpec_CopiesPassThroughValues(t *testing.T) {
	declaration := Declaration{
		Topic:               "orders/updated",
		Path:                "/webhooks",
		Fields:              []string{"id", "email"},
		MetafieldNamespaces: []string{"custom"},
		Filter:              StringPtr("status:open"),
	}
	spec, err := DeriveSpec(declaration, handlersFor("orders/updated"))
	if err != nil {
		t.Fatalf("derive spec: %v", err)
	}
	if !reflect.DeepEqual(spec.Fields, []string{"id", "email"}) {
		t.Fatalf("unexpected fields %#v", spec.Fields)
	}
	if !reflect.DeepEqual(spec.MetafieldNamespaces, []string{"custom"}) {
		t.Fatalf("unexpected metafield namespaces %#v", spec.MetafieldNamespaces)
	}
	if spec.Filter == nil || *spec.Filter != "status:open" {
		t.Fatalf("unexpected filter %#v", spec.Filter)
	}

	declaration.Fields[0] = "mutated"
	*declaration.Filter = "mutated"
	if spec.Fields[0] != "id" || *spec.Filter != "status:open" {
		t.Fatalf("expected spec to be isolated from declaration mutation")
	}
	if _, ok := spec.Handler.(namedHandler); !ok {
		t.Fatalf("expected resolved handler, got %T", spec.Handler)
	}
}
