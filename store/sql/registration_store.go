package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegistrationStore persists one row per shop and topic in
// webhook_registrations.
type RegistrationStore struct {
	db   *bun.DB
	repo repository.Repository[*registrationRecord]
}

func NewRegistrationStore(db *bun.DB) (*RegistrationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*registrationRecord](db, registrationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid registration repository wiring: %w", err)
		}
	}
	return &RegistrationStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *RegistrationStore) Upsert(ctx context.Context, in core.RegistrationRecord) (core.RegistrationRecord, error) {
	if s == nil || s.db == nil {
		return core.RegistrationRecord{}, fmt.Errorf("sqlstore: registration store is not configured")
	}
	shop := normalizeShop(in.Shop)
	topic := normalizeTopic(in.Topic)
	if shop == "" || topic == "" {
		return core.RegistrationRecord{}, core.InvalidRegistrationRecordError(in.Shop, in.Topic)
	}
	in.Shop = shop
	in.Topic = topic
	in.Path = strings.TrimSpace(in.Path)
	in.CallbackURL = strings.TrimSpace(in.CallbackURL)
	in.RemoteID = strings.TrimSpace(in.RemoteID)
	if strings.TrimSpace(in.Status) == "" {
		in.Status = core.RegistrationStatusActive
	}
	if in.DeliveryMethod == "" {
		in.DeliveryMethod = core.DeliveryMethodHTTP
	}
	now := time.Now().UTC()

	var out core.RegistrationRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.findByShopTopicTx(ctx, tx, shop, topic)
		if err != nil {
			return err
		}
		if existing == nil {
			record := newRegistrationRecord(in)
			record.ID = uuid.NewString()
			record.CreatedAt = now
			record.UpdatedAt = now
			if _, createErr := tx.NewInsert().Model(record).Exec(ctx); createErr != nil {
				return createErr
			}
			out = record.toDomain()
			return nil
		}

		existing.Path = in.Path
		existing.CallbackURL = in.CallbackURL
		existing.RemoteID = in.RemoteID
		existing.DeliveryMethod = string(in.DeliveryMethod)
		existing.Status = in.Status
		existing.Metadata = copyAnyMap(in.Metadata)
		existing.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.RegistrationRecord{}, err
	}
	return out, nil
}

func (s *RegistrationStore) Get(ctx context.Context, shop string, topic string) (core.RegistrationRecord, error) {
	if s == nil || s.repo == nil {
		return core.RegistrationRecord{}, fmt.Errorf("sqlstore: registration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("shop", "=", normalizeShop(shop)),
		repository.SelectBy("topic", "=", normalizeTopic(topic)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.RegistrationRecord{}, err
	}
	if len(records) == 0 {
		return core.RegistrationRecord{}, core.RegistrationNotFoundError(shop, topic)
	}
	return records[0].toDomain(), nil
}

func (s *RegistrationStore) ListByShop(ctx context.Context, shop string) ([]core.RegistrationRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: registration store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("shop", "=", normalizeShop(shop)),
		repository.OrderBy("topic ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.RegistrationRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *RegistrationStore) MarkRemoved(ctx context.Context, shop string, topic string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: registration store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*registrationRecord)(nil)).
		Set("status = ?", core.RegistrationStatusRemoved).
		Set("remote_id = ''").
		Set("updated_at = ?", time.Now().UTC()).
		Where("shop = ?", normalizeShop(shop)).
		Where("topic = ?", normalizeTopic(topic)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return core.RegistrationNotFoundError(shop, topic)
	}
	return nil
}

func (s *RegistrationStore) findByShopTopicTx(
	ctx context.Context,
	tx bun.Tx,
	shop string,
	topic string,
) (*registrationRecord, error) {
	record := &registrationRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.shop = ?", shop).
		Where("?TableAlias.topic = ?", topic).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}

func normalizeShop(shop string) string {
	return strings.ToLower(strings.TrimSpace(shop))
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}
