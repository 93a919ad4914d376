package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/goliatone/go-webhook-lifecycle/providers/shopify"
	sqlstore "github.com/goliatone/go-webhook-lifecycle/store/sql"
)

func TestCLI_RecreateListDestroy(t *testing.T) {
	api := &adminAPI{subscriptions: map[string]adminSubscription{}}
	server := httptest.NewServer(api)
	defer server.Close()

	configPath := writeCLIConfig(t, server.URL)
	opts := &rootOptions{appOptions: appOptions{httpClient: server.Client()}}

	out, err := runCLI(t, opts, "--config", configPath, "recreate")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if api.count() != 2 {
		t.Fatalf("expected two remote subscriptions, got %d", api.count())
	}
	if !strings.Contains(out, "https://app.example.com/webhooks/orders") || !strings.Contains(out, "gid://shopify/WebhookSubscription/") {
		t.Fatalf("expected recreate to print stored registrations, got:\n%s", out)
	}

	out, err = runCLI(t, opts, "--config", configPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Count(out, core.RegistrationStatusActive) != 2 {
		t.Fatalf("expected two active registrations to persist across runs, got:\n%s", out)
	}

	out, err = runCLI(t, opts, "--config", configPath, "destroy")
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if !strings.Contains(out, "destroyed 2 webhook(s) for demo.myshopify.com") {
		t.Fatalf("unexpected destroy output:\n%s", out)
	}
	if api.count() != 0 || api.deletes() != 2 {
		t.Fatalf("expected both subscriptions deleted, count=%d deletes=%d", api.count(), api.deletes())
	}
}

func TestCLI_AddCreatesThenUpdatesNothing(t *testing.T) {
	api := &adminAPI{subscriptions: map[string]adminSubscription{}}
	server := httptest.NewServer(api)
	defer server.Close()

	configPath := writeCLIConfig(t, server.URL)
	opts := &rootOptions{appOptions: appOptions{httpClient: server.Client()}}

	out, err := runCLI(t, opts, "--config", configPath, "add")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if strings.Count(out, " "+shopify.RegisterOperationCreate+" ") != 2 {
		t.Fatalf("expected two creates, got:\n%s", out)
	}

	out, err = runCLI(t, opts, "--config", configPath, "add")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if strings.Count(out, " "+shopify.RegisterOperationNoop+" ") != 2 {
		t.Fatalf("expected the second add to leave subscriptions alone, got:\n%s", out)
	}
	if api.count() != 2 {
		t.Fatalf("expected two remote subscriptions, got %d", api.count())
	}
}

func TestCLI_PlanPrintsDerivedSpecs(t *testing.T) {
	configPath := writeCLIConfig(t, "https://admin.invalid")
	out, err := runCLI(t, &rootOptions{}, "--config", configPath, "plan")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, want := range []string{"orders/create", "/webhooks/orders", "financial_status:paid", "app/uninstalled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected plan output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCLI_RequiresShop(t *testing.T) {
	configPath := writeFile(t, fmt.Sprintf(`
app_url: https://app.example.com
database:
  driver: sqlite
  dsn: %s
webhooks:
  - topic: orders/create
    path: /webhooks/orders
`, filepath.Join(t.TempDir(), "webhooks.db")))

	if _, err := runCLI(t, &rootOptions{}, "--config", configPath, "destroy"); err == nil || !strings.Contains(err.Error(), "shop is required") {
		t.Fatalf("expected missing shop error, got %v", err)
	}
}

func TestRouter_ProcessesSignedDeliveriesOnceAndExposesMetrics(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	config := DefaultConfig()
	config.AppURL = "https://app.example.com"
	config.WebhookSecret = "secret"
	config.Database = sqlstore.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "webhooks.db")}
	config.Webhooks = []core.Declaration{{Topic: "orders/create", Path: "/webhooks/orders"}}

	a, err := newApp(ctx, config, &logs, appOptions{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.manager.AddRegistrations(ctx); err != nil {
		t.Fatalf("add registrations: %v", err)
	}
	router, err := newRouter(ctx, a)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	body := []byte(`{"id":1001}`)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewReader(body))
		req.Header.Set(shopify.HeaderHMAC, sign("secret", body))
		req.Header.Set(shopify.HeaderWebhookID, "delivery-1")
		req.Header.Set(shopify.HeaderTopic, "orders/create")
		req.Header.Set(shopify.HeaderShopDomain, "demo.myshopify.com")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK && rec.Code != http.StatusAccepted {
			t.Fatalf("delivery %d: unexpected status %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	if got := strings.Count(logs.String(), "webhook delivery received"); got != 1 {
		t.Fatalf("expected one handled delivery, got %d\n%s", got, logs.String())
	}

	unsigned := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewReader(body))
	unsigned.Header.Set(shopify.HeaderWebhookID, "delivery-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, unsigned)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected unsigned delivery to be rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	exposition := rec.Body.String()
	for _, want := range []string{"webhooks_deliveries_total", "webhooks_add_registrations_total"} {
		if !strings.Contains(exposition, want) {
			t.Fatalf("expected %s in metrics, got:\n%s", want, exposition)
		}
	}
	if strings.Contains(exposition, "demo.myshopify.com") {
		t.Fatalf("expected shop tag to be dropped from metrics")
	}
}

func TestRouter_RequiresWebhookSecret(t *testing.T) {
	config := DefaultConfig()
	config.AppURL = "https://app.example.com"
	config.Database = sqlstore.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "webhooks.db")}

	a, err := newApp(context.Background(), config, &bytes.Buffer{}, appOptions{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer func() { _ = a.Close() }()
	if _, err := newRouter(context.Background(), a); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func runCLI(t *testing.T, opts *rootOptions, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(opts)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeCLIConfig(t *testing.T, adminURL string) string {
	t.Helper()
	dir := t.TempDir()
	return writeFile(t, fmt.Sprintf(`
app_url: https://app.example.com
admin_base_url: %s
shop: demo.myshopify.com
access_token: shpat_test
webhook_secret: secret
log_level: error
database:
  driver: sqlite
  dsn: %s
cache:
  enabled: true
webhooks:
  - topic: orders/create
    path: /webhooks/orders
    filter: "financial_status:paid"
  - topic: app/uninstalled
    path: /webhooks/app
`, adminURL, filepath.Join(dir, "webhooks.db")))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type adminSubscription struct {
	ID         string
	Topic      string
	Callback   string
	Filter     string
	Fields     []any
	Namespaces []any
}

func (s *adminSubscription) apply(input map[string]any) {
	s.Callback = fmt.Sprint(input["callbackUrl"])
	if filter, ok := input["filter"]; ok {
		s.Filter = fmt.Sprint(filter)
	}
	if fields, ok := input["includeFields"].([]any); ok {
		s.Fields = fields
	}
	if namespaces, ok := input["metafieldNamespaces"].([]any); ok {
		s.Namespaces = namespaces
	}
}

// adminAPI fakes the Admin GraphQL webhook subscription operations.
type adminAPI struct {
	mu            sync.Mutex
	subscriptions map[string]adminSubscription
	nextID        int
	deleted       int
}

func (a *adminAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subscriptions)
}

func (a *adminAPI) deletes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deleted
}

func (a *adminAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var payload struct {
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var data any
	switch payload.OperationName {
	case "webhookSubscriptions":
		topics, _ := payload.Variables["topics"].([]any)
		edges := []map[string]any{}
		for _, sub := range a.subscriptions {
			for _, topic := range topics {
				if sub.Topic == topic {
					edges = append(edges, map[string]any{"node": map[string]any{
						"id":                  sub.ID,
						"topic":               sub.Topic,
						"filter":              sub.Filter,
						"includeFields":       sub.Fields,
						"metafieldNamespaces": sub.Namespaces,
						"endpoint":            map[string]any{"callbackUrl": sub.Callback},
					}})
				}
			}
		}
		data = map[string]any{"webhookSubscriptions": map[string]any{"edges": edges}}
	case "webhookSubscriptionCreate":
		input, _ := payload.Variables["webhookSubscription"].(map[string]any)
		a.nextID++
		sub := adminSubscription{
			ID:    fmt.Sprintf("gid://shopify/WebhookSubscription/%d", a.nextID),
			Topic: fmt.Sprint(payload.Variables["topic"]),
		}
		sub.apply(input)
		a.subscriptions[sub.ID] = sub
		data = map[string]any{"webhookSubscriptionCreate": map[string]any{
			"webhookSubscription": map[string]any{"id": sub.ID},
			"userErrors":          []any{},
		}}
	case "webhookSubscriptionUpdate":
		id := fmt.Sprint(payload.Variables["id"])
		input, _ := payload.Variables["webhookSubscription"].(map[string]any)
		sub := a.subscriptions[id]
		sub.apply(input)
		a.subscriptions[id] = sub
		data = map[string]any{"webhookSubscriptionUpdate": map[string]any{
			"webhookSubscription": map[string]any{"id": id},
			"userErrors":          []any{},
		}}
	case "webhookSubscriptionDelete":
		id := fmt.Sprint(payload.Variables["id"])
		delete(a.subscriptions, id)
		a.deleted++
		data = map[string]any{"webhookSubscriptionDelete": map[string]any{
			"deletedWebhookSubscriptionId": id,
			"userErrors":                   []any{},
		}}
	default:
		http.Error(w, "unexpected operation "+payload.OperationName, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}
