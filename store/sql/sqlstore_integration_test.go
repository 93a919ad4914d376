package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhook-lifecycle/core"
	sqlstore "github.com/goliatone/go-webhook-lifecycle/store/sql"
	"github.com/goliatone/go-webhook-lifecycle/webhooks"
)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"webhook_registrations", "webhook_deliveries"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestRegistrationStore_UpsertGetListAndMarkRemoved(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.RegistrationStore()

	created, err := store.Upsert(ctx, core.RegistrationRecord{
		Shop:        "Demo.myshopify.com",
		Topic:       "ORDERS/CREATE",
		Path:        "/webhooks/orders",
		CallbackURL: "https://app.example.com/webhooks/orders",
		RemoteID:    "gid://shopify/WebhookSubscription/1",
		Metadata:    map[string]any{"operation": "create"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.ID == "" || created.Shop != "demo.myshopify.com" || created.Topic != "orders/create" {
		t.Fatalf("unexpected created record: %#v", created)
	}
	if created.Status != core.RegistrationStatusActive || created.DeliveryMethod != core.DeliveryMethodHTTP {
		t.Fatalf("expected active http defaults, got %#v", created)
	}

	updated, err := store.Upsert(ctx, core.RegistrationRecord{
		Shop:        "demo.myshopify.com",
		Topic:       "orders/create",
		Path:        "/webhooks/orders/v2",
		CallbackURL: "https://app.example.com/webhooks/orders/v2",
		RemoteID:    "gid://shopify/WebhookSubscription/1",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("expected upsert to keep id %q, got %q", created.ID, updated.ID)
	}

	if _, err := store.Upsert(ctx, core.RegistrationRecord{
		Shop:  "demo.myshopify.com",
		Topic: "app/uninstalled",
		Path:  "/webhooks/app",
	}); err != nil {
		t.Fatalf("upsert app topic: %v", err)
	}

	fetched, err := store.Get(ctx, "DEMO.myshopify.com", "Orders/Create")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Path != "/webhooks/orders/v2" || fetched.RemoteID == "" {
		t.Fatalf("unexpected fetched record: %#v", fetched)
	}

	listed, err := store.ListByShop(ctx, "demo.myshopify.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].Topic != "app/uninstalled" || listed[1].Topic != "orders/create" {
		t.Fatalf("expected topic-ordered records, got %#v", listed)
	}

	if err := store.MarkRemoved(ctx, "demo.myshopify.com", "orders/create"); err != nil {
		t.Fatalf("mark removed: %v", err)
	}
	removed, err := store.Get(ctx, "demo.myshopify.com", "orders/create")
	if err != nil {
		t.Fatalf("get removed: %v", err)
	}
	if removed.Status != core.RegistrationStatusRemoved || removed.RemoteID != "" {
		t.Fatalf("expected removed record without remote id, got %#v", removed)
	}

	if _, err := store.Get(ctx, "demo.myshopify.com", "products/update"); !core.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := store.MarkRemoved(ctx, "other.myshopify.com", "orders/create"); !core.IsNotFound(err) {
		t.Fatalf("expected not found on mark removed, got %v", err)
	}
	if _, err := store.Upsert(ctx, core.RegistrationRecord{Shop: "demo.myshopify.com"}); err == nil {
		t.Fatalf("expected missing topic error")
	}
}

func TestWebhookDeliveryStore_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new delivery store: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	first, claimed, err := store.Claim(ctx, "shopify", "42", []byte(`{"id":1}`), time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed || first.Attempts != 1 || first.Status != webhooks.DeliveryStatusProcessing {
		t.Fatalf("expected first claim to succeed, got claimed=%t record=%#v", claimed, first)
	}

	if _, claimed, err := store.Claim(ctx, "shopify", "42", nil, time.Minute); err != nil || claimed {
		t.Fatalf("expected in-flight delivery not to be reclaimed, claimed=%t err=%v", claimed, err)
	}

	if err := store.Fail(ctx, first.ClaimID, errors.New("handler failed"), now.Add(10*time.Second), 3); err != nil {
		t.Fatalf("fail: %v", err)
	}
	failed, err := store.Get(ctx, "shopify", "42")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if failed.Status != webhooks.DeliveryStatusRetryReady || failed.NextAttemptAt == nil {
		t.Fatalf("expected retry_ready with next attempt, got %#v", failed)
	}

	if _, claimed, err := store.Claim(ctx, "shopify", "42", nil, time.Minute); err != nil || claimed {
		t.Fatalf("expected claim before next attempt to be refused, claimed=%t err=%v", claimed, err)
	}

	now = now.Add(11 * time.Second)
	second, claimed, err := store.Claim(ctx, "shopify", "42", nil, time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !claimed || second.Attempts != 2 {
		t.Fatalf("expected second attempt claim, got claimed=%t record=%#v", claimed, second)
	}

	if err := store.Complete(ctx, first.ClaimID); err != nil {
		t.Fatalf("stale complete: %v", err)
	}
	stale, _ := store.Get(ctx, "shopify", "42")
	if stale.Status != webhooks.DeliveryStatusProcessing {
		t.Fatalf("expected stale claim to be ignored, got %q", stale.Status)
	}

	if err := store.Complete(ctx, second.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	done, _ := store.Get(ctx, "shopify", "42")
	if done.Status != webhooks.DeliveryStatusProcessed || done.NextAttemptAt != nil {
		t.Fatalf("expected processed delivery, got %#v", done)
	}
	if _, claimed, err := store.Claim(ctx, "shopify", "42", nil, time.Minute); err != nil || claimed {
		t.Fatalf("expected processed delivery to stay deduped, claimed=%t err=%v", claimed, err)
	}
}

func TestWebhookDeliveryStore_FailAtMaxAttemptsIsDead(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new delivery store: %v", err)
	}
	record, claimed, err := store.Claim(ctx, "shopify", "99", nil, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("claim: claimed=%t err=%v", claimed, err)
	}
	if err := store.Fail(ctx, record.ClaimID, errors.New("boom"), time.Time{}, 1); err != nil {
		t.Fatalf("fail: %v", err)
	}
	dead, err := store.Get(ctx, "shopify", "99")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dead.Status != webhooks.DeliveryStatusDead {
		t.Fatalf("expected dead delivery, got %q", dead.Status)
	}
	if err := store.Complete(ctx, "not-a-claim"); err == nil {
		t.Fatalf("expected invalid claim id error")
	}
}

func TestWebhookDeliveryStore_BacksProcessor(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new delivery store: %v", err)
	}
	calls := 0
	processor := webhooks.NewProcessor(
		verifierFunc(func(context.Context, core.InboundRequest) error { return nil }),
		store,
		handlerFunc(func(context.Context, core.InboundRequest) (core.InboundResult, error) {
			calls++
			return core.InboundResult{Accepted: true, StatusCode: 200}, nil
		}),
	)
	request := core.InboundRequest{
		ProviderID: "shopify",
		Headers:    map[string]string{"X-Shopify-Webhook-Id": "proc-1"},
		Body:       []byte(`{}`),
	}
	if _, err := processor.Process(ctx, request); err != nil {
		t.Fatalf("first process: %v", err)
	}
	result, err := processor.Process(ctx, request)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if deduped, _ := result.Metadata["deduped"].(bool); !deduped {
		t.Fatalf("expected deduped redelivery, got %#v", result.Metadata)
	}
}

func TestResolveDriverErrors(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

type verifierFunc func(ctx context.Context, req core.InboundRequest) error

func (f verifierFunc) Verify(ctx context.Context, req core.InboundRequest) error {
	return f(ctx, req)
}

type handlerFunc func(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)

func (f handlerFunc) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	return f(ctx, req)
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:webhooks-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}
	return client, func() {
		_ = client.Close()
	}
}
