package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-lifecycle/core"
)

const (
	registrationCacheKeyPrefix     = "webhooks::registration::v1"
	registrationListCacheKeyPrefix = "webhooks::registrations::v1"
)

// CachedRegistrationStore serves reads from a cache and invalidates the
// shop's keys on every write.
type CachedRegistrationStore struct {
	base  core.RegistrationStore
	cache repositorycache.CacheService
}

func NewCachedRegistrationStore(
	base core.RegistrationStore,
	cacheService repositorycache.CacheService,
) (*CachedRegistrationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base registration store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: registration cache service is required")
	}
	return &CachedRegistrationStore{base: base, cache: cacheService}, nil
}

// RegistrationCacheKey returns webhooks::registration::v1::<shop>::<topic>
// with each segment URL-path escaped after normalization.
func RegistrationCacheKey(shop string, topic string) string {
	return strings.Join([]string{
		registrationCacheKeyPrefix,
		url.PathEscape(normalizeShop(shop)),
		url.PathEscape(normalizeTopic(topic)),
	}, "::")
}

func RegistrationListCacheKey(shop string) string {
	return registrationListCacheKeyPrefix + "::" + url.PathEscape(normalizeShop(shop))
}

func (s *CachedRegistrationStore) Upsert(ctx context.Context, record core.RegistrationRecord) (core.RegistrationRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.RegistrationRecord{}, fmt.Errorf("sqlstore: cached registration store is not configured")
	}
	out, err := s.base.Upsert(ctx, record)
	if err != nil {
		return core.RegistrationRecord{}, err
	}
	if err := s.invalidate(ctx, out.Shop, out.Topic); err != nil {
		return core.RegistrationRecord{}, err
	}
	return out, nil
}

func (s *CachedRegistrationStore) Get(ctx context.Context, shop string, topic string) (core.RegistrationRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.RegistrationRecord{}, fmt.Errorf("sqlstore: cached registration store is not configured")
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, RegistrationCacheKey(shop, topic),
		func(ctx context.Context) (core.RegistrationRecord, error) {
			return s.base.Get(ctx, shop, topic)
		})
	if err != nil {
		return core.RegistrationRecord{}, err
	}
	return cloneRegistration(record), nil
}

func (s *CachedRegistrationStore) ListByShop(ctx context.Context, shop string) ([]core.RegistrationRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached registration store is not configured")
	}
	records, err := repositorycache.GetOrFetch(ctx, s.cache, RegistrationListCacheKey(shop),
		func(ctx context.Context) ([]core.RegistrationRecord, error) {
			return s.base.ListByShop(ctx, shop)
		})
	if err != nil {
		return nil, err
	}
	out := make([]core.RegistrationRecord, 0, len(records))
	for _, record := range records {
		out = append(out, cloneRegistration(record))
	}
	return out, nil
}

func (s *CachedRegistrationStore) MarkRemoved(ctx context.Context, shop string, topic string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached registration store is not configured")
	}
	if err := s.base.MarkRemoved(ctx, shop, topic); err != nil {
		return err
	}
	return s.invalidate(ctx, shop, topic)
}

func (s *CachedRegistrationStore) invalidate(ctx context.Context, shop string, topic string) error {
	if err := s.cache.Delete(ctx, RegistrationCacheKey(shop, topic)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, RegistrationListCacheKey(shop))
}

func cloneRegistration(record core.RegistrationRecord) core.RegistrationRecord {
	if record.Metadata != nil {
		record.Metadata = copyAnyMap(record.Metadata)
	}
	return record
}
