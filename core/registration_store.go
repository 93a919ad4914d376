package core

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistrationStore keeps registration records in process memory,
// keyed by shop and normalized topic.
type MemoryRegistrationStore struct {
	mu      sync.RWMutex
	records map[string]RegistrationRecord
	Now     func() time.Time
}

func NewMemoryRegistrationStore() *MemoryRegistrationStore {
	return &MemoryRegistrationStore{
		records: map[string]RegistrationRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryRegistrationStore) Upsert(_ context.Context, record RegistrationRecord) (RegistrationRecord, error) {
	shop := strings.TrimSpace(strings.ToLower(record.Shop))
	topic := normalizeTopic(record.Topic)
	if shop == "" || topic == "" {
		return RegistrationRecord{}, InvalidRegistrationRecordError(record.Shop, record.Topic)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := registrationKey(shop, topic)
	if existing, ok := s.records[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else {
		record.ID = uuid.NewString()
		record.CreatedAt = now
	}
	record.Shop = shop
	record.Topic = topic
	if strings.TrimSpace(record.Status) == "" {
		record.Status = RegistrationStatusActive
	}
	if record.DeliveryMethod == "" {
		record.DeliveryMethod = DeliveryMethodHTTP
	}
	record.Metadata = cloneMetadata(record.Metadata)
	record.UpdatedAt = now
	s.records[key] = record
	return cloneRecord(record), nil
}

func (s *MemoryRegistrationStore) Get(_ context.Context, shop string, topic string) (RegistrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[registrationKey(strings.TrimSpace(strings.ToLower(shop)), normalizeTopic(topic))]
	if !ok {
		return RegistrationRecord{}, RegistrationNotFoundError(shop, topic)
	}
	return cloneRecord(record), nil
}

func (s *MemoryRegistrationStore) ListByShop(_ context.Context, shop string) ([]RegistrationRecord, error) {
	shop = strings.TrimSpace(strings.ToLower(shop))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RegistrationRecord, 0)
	for _, record := range s.records {
		if record.Shop == shop {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (s *MemoryRegistrationStore) MarkRemoved(_ context.Context, shop string, topic string) error {
	key := registrationKey(strings.TrimSpace(strings.ToLower(shop)), normalizeTopic(topic))

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return RegistrationNotFoundError(shop, topic)
	}
	record.Status = RegistrationStatusRemoved
	record.RemoteID = ""
	record.UpdatedAt = s.now()
	s.records[key] = record
	return nil
}

func (s *MemoryRegistrationStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func registrationKey(shop string, topic string) string {
	return shop + "|" + topic
}

func cloneRecord(record RegistrationRecord) RegistrationRecord {
	record.Metadata = cloneMetadata(record.Metadata)
	return record
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ RegistrationStore = (*MemoryRegistrationStore)(nil)
