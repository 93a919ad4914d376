package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-lifecycle/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultClaimLease  = 30 * time.Second
	defaultMaxAttempts = 8
)

// WebhookDeliveryStore is a DeliveryLedger backed by webhook_deliveries.
// Claim ids have the form "<row id>:<attempt>"; completing or failing with a
// claim from an older attempt is a no-op.
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
	Now  func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := s.now()
	next := now.Add(lease)

	existing, err := s.find(ctx, providerID, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	if existing == nil {
		record := &webhookDeliveryRecord{
			ID:            uuid.NewString(),
			ProviderID:    providerID,
			DeliveryID:    deliveryID,
			Status:        webhooks.DeliveryStatusProcessing,
			Attempts:      1,
			NextAttemptAt: &next,
			Payload:       append([]byte(nil), payload...),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				current, getErr := s.Get(ctx, providerID, deliveryID)
				if getErr != nil {
					return webhooks.DeliveryRecord{}, false, getErr
				}
				return current, false, nil
			}
			return webhooks.DeliveryRecord{}, false, err
		}
		return webhookDeliveryToDomain(record), true, nil
	}

	switch existing.Status {
	case webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusDead:
		return webhookDeliveryToDomain(existing), false, nil
	case webhooks.DeliveryStatusRetryReady, webhooks.DeliveryStatusProcessing:
		if existing.NextAttemptAt != nil && now.Before(existing.NextAttemptAt.UTC()) {
			return webhookDeliveryToDomain(existing), false, nil
		}
	}

	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessing).
		Set("attempts = ?", existing.Attempts+1).
		Set("next_attempt_at = ?", next).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Where("attempts = ?", existing.Attempts).
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		current, getErr := s.Get(ctx, providerID, deliveryID)
		if getErr != nil {
			return webhooks.DeliveryRecord{}, false, getErr
		}
		return current, false, nil
	}
	existing.Status = webhooks.DeliveryStatusProcessing
	existing.Attempts++
	existing.NextAttemptAt = &next
	existing.UpdatedAt = now
	return webhookDeliveryToDomain(existing), true, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record, err := s.find(ctx, strings.TrimSpace(providerID), strings.TrimSpace(deliveryID))
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	if record == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf(
			"sqlstore: webhook delivery not found for provider %q delivery %q",
			providerID,
			deliveryID,
		)
	}
	return webhookDeliveryToDomain(record), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	id, attempt, err := parseClaimID(claimID)
	if err != nil {
		return err
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != webhooks.DeliveryStatusProcessing || record.Attempts != attempt {
		return nil
	}
	_, err = s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("attempts = ?", attempt).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	id, attempt, err := parseClaimID(claimID)
	if err != nil {
		return err
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != webhooks.DeliveryStatusProcessing || record.Attempts != attempt {
		return nil
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	query := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("attempts = ?", attempt).
		Where("status = ?", webhooks.DeliveryStatusProcessing)
	if record.Attempts >= maxAttempts {
		query = query.
			Set("status = ?", webhooks.DeliveryStatusDead).
			Set("next_attempt_at = NULL")
	} else {
		if nextAttemptAt.IsZero() {
			nextAttemptAt = s.now()
		}
		query = query.
			Set("status = ?", webhooks.DeliveryStatusRetryReady).
			Set("next_attempt_at = ?", nextAttemptAt.UTC())
	}
	_, err = query.Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) find(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (*webhookDeliveryRecord, error) {
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", providerID).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (s *WebhookDeliveryStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	result := webhooks.DeliveryRecord{
		ID:         record.ID,
		ClaimID:    record.ID + ":" + strconv.Itoa(record.Attempts),
		ProviderID: record.ProviderID,
		DeliveryID: record.DeliveryID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		CreatedAt:  record.CreatedAt.UTC(),
		UpdatedAt:  record.UpdatedAt.UTC(),
	}
	if record.NextAttemptAt != nil {
		value := record.NextAttemptAt.UTC()
		result.NextAttemptAt = &value
	}
	return result
}

func parseClaimID(claimID string) (string, int, error) {
	id, rawAttempt, ok := strings.Cut(strings.TrimSpace(claimID), ":")
	if !ok || strings.TrimSpace(id) == "" {
		return "", 0, fmt.Errorf("sqlstore: invalid claim id %q", claimID)
	}
	attempt, err := strconv.Atoi(rawAttempt)
	if err != nil || attempt <= 0 {
		return "", 0, fmt.Errorf("sqlstore: invalid claim id %q", claimID)
	}
	return id, attempt, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
