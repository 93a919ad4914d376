package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryDeliveryLedger_StaleClaimCannotComplete(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ledger := NewMemoryDeliveryLedger()
	ledger.Now = func() time.Time { return now }
	ctx := context.Background()

	first, claimed, err := ledger.Claim(ctx, "shopify", "d-1", nil, time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected first claim, claimed=%v err=%v", claimed, err)
	}

	now = now.Add(2 * time.Second)
	second, claimed, err := ledger.Claim(ctx, "shopify", "d-1", nil, time.Second)
	if err != nil || !claimed {
		t.Fatalf("expected reclaim after lease expiry, claimed=%v err=%v", claimed, err)
	}
	if second.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", second.Attempts)
	}

	if err := ledger.Complete(ctx, first.ClaimID); err != nil {
		t.Fatalf("complete stale claim: %v", err)
	}
	record, _ := ledger.Get(ctx, "shopify", "d-1")
	if record.Status != DeliveryStatusProcessing {
		t.Fatalf("expected stale claim to be ignored, got %q", record.Status)
	}

	if err := ledger.Complete(ctx, second.ClaimID); err != nil {
		t.Fatalf("complete current claim: %v", err)
	}
	record, _ = ledger.Get(ctx, "shopify", "d-1")
	if record.Status != DeliveryStatusProcessed || record.NextAttemptAt != nil {
		t.Fatalf("expected processed record, got %#v", record)
	}

	if _, claimed, _ := ledger.Claim(ctx, "shopify", "d-1", nil, time.Second); claimed {
		t.Fatalf("expected processed delivery not to be claimed again")
	}
}

func TestMemoryDeliveryLedger_FailAndSnapshot(t *testing.T) {
	ledger := NewMemoryDeliveryLedger()
	ctx := context.Background()
	for _, id := range []string{"b", "a"} {
		record, _, err := ledger.Claim(ctx, "shopify", id, nil, 0)
		if err != nil {
			t.Fatalf("claim %s: %v", id, err)
		}
		if err := ledger.Fail(ctx, record.ClaimID, errors.New("boom"), time.Time{}, 1); err != nil {
			t.Fatalf("fail %s: %v", id, err)
		}
	}
	snapshot := ledger.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected two records, got %d", len(snapshot))
	}
	if snapshot[0].DeliveryID != "a" || snapshot[1].DeliveryID != "b" {
		t.Fatalf("expected sorted snapshot, got %#v", snapshot)
	}
	for _, record := range snapshot {
		if record.Status != DeliveryStatusDead {
			t.Fatalf("expected dead status with one max attempt, got %q", record.Status)
		}
	}
	if err := ledger.Complete(ctx, "garbage"); err == nil {
		t.Fatalf("expected invalid claim id error")
	}
}
