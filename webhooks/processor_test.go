package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-lifecycle/core"
)

func TestProcessor_DedupesDeliveries(t *testing.T) {
	ledger := NewMemoryDeliveryLedger()
	handler := &stubWebhookHandler{
		result: core.InboundResult{
			Accepted:   true,
			StatusCode: 202,
		},
	}
	processor := NewProcessor(stubVerifier{err: nil}, ledger, handler)

	req := core.InboundRequest{
		ProviderID: "shopify",
		Metadata: map[string]any{
			"delivery_id": "delivery-1",
		},
	}

	first, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process first webhook: %v", err)
	}
	if !first.Accepted {
		t.Fatalf("expected first delivery accepted")
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler to be called once")
	}

	second, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process duplicate webhook: %v", err)
	}
	if !second.Accepted {
		t.Fatalf("expected duplicate to be accepted as deduped")
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped metadata marker")
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler call count to remain unchanged for duplicate")
	}
}

func TestProcessor_RecordsRetryOnHandlerFailure(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryDeliveryLedger()
	ledger.Now = func() time.Time { return now }
	handler := &stubWebhookHandler{
		err: errors.New("temporary failure"),
	}
	processor := NewProcessor(stubVerifier{}, ledger, handler)
	processor.RetryPolicy = ExponentialRetryPolicy{Initial: time.Second, Max: 4 * time.Second}
	processor.Now = func() time.Time { return now }

	req := core.InboundRequest{
		ProviderID: "shopify",
		Headers: map[string]string{
			"X-Shopify-Webhook-Id": "42",
		},
	}
	if _, err := processor.Process(context.Background(), req); err == nil {
		t.Fatalf("expected retryable handler failure")
	}

	record, err := ledger.Get(context.Background(), "shopify", "42")
	if err != nil {
		t.Fatalf("load delivery record: %v", err)
	}
	if record.Status != DeliveryStatusRetryReady {
		t.Fatalf("expected retry-ready status, got %q", record.Status)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", record.Attempts)
	}
	if record.NextAttemptAt == nil || !record.NextAttemptAt.Equal(now.Add(time.Second)) {
		t.Fatalf("expected next attempt one second out, got %v", record.NextAttemptAt)
	}

	if _, err := processor.Process(context.Background(), req); err != nil {
		t.Fatalf("expected early redelivery to be deduped, got %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler not to run before next attempt, got %d calls", handler.calls)
	}
}

func TestProcessor_MovesToDeadAfterMaxAttempts(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryDeliveryLedger()
	ledger.Now = func() time.Time { return now }
	handler := &stubWebhookHandler{err: errors.New("still failing")}
	processor := NewProcessor(stubVerifier{}, ledger, handler)
	processor.MaxAttempts = 2
	processor.RetryPolicy = ExponentialRetryPolicy{Initial: time.Millisecond, Max: time.Millisecond}
	processor.Now = func() time.Time { return now }

	req := core.InboundRequest{ProviderID: "shopify", Metadata: map[string]any{"delivery_id": "d-9"}}
	for i := 0; i < 2; i++ {
		_, _ = processor.Process(context.Background(), req)
		now = now.Add(10 * time.Millisecond)
	}
	record, err := ledger.Get(context.Background(), "shopify", "d-9")
	if err != nil {
		t.Fatalf("load delivery record: %v", err)
	}
	if record.Status != DeliveryStatusDead {
		t.Fatalf("expected dead status, got %q", record.Status)
	}
}

func TestProcessor_SurfacesLedgerFailError(t *testing.T) {
	handlerErr := errors.New("temporary failure")
	ledger := &failingLedger{MemoryDeliveryLedger: NewMemoryDeliveryLedger(), failErr: errors.New("ledger offline")}
	processor := NewProcessor(stubVerifier{}, ledger, &stubWebhookHandler{err: handlerErr})

	req := core.InboundRequest{ProviderID: "shopify", Metadata: map[string]any{"delivery_id": "d-10"}}
	_, err := processor.Process(context.Background(), req)
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error to be kept, got %v", err)
	}
	if !errors.Is(err, ledger.failErr) {
		t.Fatalf("expected ledger fail error to be joined, got %v", err)
	}

	processor.Handler = &stubWebhookHandler{result: core.InboundResult{Accepted: false, StatusCode: 503}}
	req.Metadata["delivery_id"] = "d-11"
	_, err = processor.Process(context.Background(), req)
	if err == nil || !errors.Is(err, ledger.failErr) {
		t.Fatalf("expected ledger fail error on retryable status, got %v", err)
	}
	if !core.HasTextCode(err, core.WebhookErrorInternal) {
		t.Fatalf("expected internal text code for the ledger error, got %v", err)
	}
}

func TestProcessor_RejectsInvalidSignature(t *testing.T) {
	ledger := NewMemoryDeliveryLedger()
	handler := &stubWebhookHandler{}
	processor := NewProcessor(stubVerifier{err: errors.New("signature mismatch")}, ledger, handler)

	result, err := processor.Process(context.Background(), core.InboundRequest{
		ProviderID: "shopify",
		Metadata: map[string]any{
			"delivery_id": "delivery-2",
		},
	})
	if err == nil {
		t.Fatalf("expected verifier error")
	}
	if !core.HasTextCode(err, core.WebhookErrorUnauthorized) {
		t.Fatalf("expected unauthorized text code, got %v", err)
	}
	if result.StatusCode != 401 {
		t.Fatalf("expected unauthorized status code, got %d", result.StatusCode)
	}
	if handler.calls != 0 {
		t.Fatalf("expected handler not to run when verification fails")
	}
}

func TestProcessor_MissingDeliveryIDIsBadInput(t *testing.T) {
	processor := NewProcessor(nil, NewMemoryDeliveryLedger(), &stubWebhookHandler{})
	_, err := processor.Process(context.Background(), core.InboundRequest{ProviderID: "shopify"})
	if !core.HasTextCode(err, core.WebhookErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

func TestExponentialRetryPolicy_CapsAtMax(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: time.Second, Max: 5 * time.Second}
	cases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 5 * time.Second, 10: 5 * time.Second}
	for attempt, want := range cases {
		if got := policy.NextDelay(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, core.InboundRequest) error {
	return v.err
}

type stubWebhookHandler struct {
	result core.InboundResult
	err    error
	calls  int
}

func (h *stubWebhookHandler) Handle(context.Context, core.InboundRequest) (core.InboundResult, error) {
	h.calls++
	if h.err != nil {
		return core.InboundResult{}, h.err
	}
	return h.result, nil
}

type failingLedger struct {
	*MemoryDeliveryLedger
	failErr error
}

func (l *failingLedger) Fail(context.Context, string, error, time.Time, int) error {
	return l.failErr
}
