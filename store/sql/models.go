package sqlstore

import (
	"time"

	"github.com/goliatone/go-webhook-lifecycle/core"
	"github.com/uptrace/bun"
)

type registrationRecord struct {
	bun.BaseModel `bun:"table:webhook_registrations,alias:wr"`

	ID             string         `bun:"id,pk"`
	Shop           string         `bun:"shop,notnull"`
	Topic          string         `bun:"topic,notnull"`
	Path           string         `bun:"path,notnull"`
	CallbackURL    string         `bun:"callback_url,notnull"`
	RemoteID       string         `bun:"remote_id,notnull"`
	DeliveryMethod string         `bun:"delivery_method,notnull"`
	Status         string         `bun:"status,notnull"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newRegistrationRecord(in core.RegistrationRecord) *registrationRecord {
	return &registrationRecord{
		ID:             in.ID,
		Shop:           in.Shop,
		Topic:          in.Topic,
		Path:           in.Path,
		CallbackURL:    in.CallbackURL,
		RemoteID:       in.RemoteID,
		DeliveryMethod: string(in.DeliveryMethod),
		Status:         in.Status,
		Metadata:       copyAnyMap(in.Metadata),
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
	}
}

func (r *registrationRecord) toDomain() core.RegistrationRecord {
	if r == nil {
		return core.RegistrationRecord{}
	}
	out := core.RegistrationRecord{
		ID:             r.ID,
		Shop:           r.Shop,
		Topic:          r.Topic,
		Path:           r.Path,
		CallbackURL:    r.CallbackURL,
		RemoteID:       r.RemoteID,
		DeliveryMethod: core.DeliveryMethod(r.DeliveryMethod),
		Status:         r.Status,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if len(r.Metadata) > 0 {
		out.Metadata = copyAnyMap(r.Metadata)
	}
	return out
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID            string     `bun:"id,pk"`
	ProviderID    string     `bun:"provider_id,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	LastError     string     `bun:"last_error,notnull"`
	Payload       []byte     `bun:"payload"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
