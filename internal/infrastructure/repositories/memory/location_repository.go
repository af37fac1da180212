package memory

import (
	"context"
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
)

type MemoryLocationRepository struct {
	// Newest sample first, per group. The log is append-only; retention is
	// someone else's job.
	samples map[domain.GroupID][]*domain.LocationSample
	mu      sync.RWMutex
}

func NewMemoryLocationRepository() ports.LocationRepository {
	return &MemoryLocationRepository{
		samples: make(map[domain.GroupID][]*domain.LocationSample),
	}
}

func (r *MemoryLocationRepository) Insert(ctx context.Context, sample *domain.LocationSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *sample
	r.samples[sample.GroupID] = append([]*domain.LocationSample{&copied}, r.samples[sample.GroupID]...)
	return nil
}

func (r *MemoryLocationRepository) FindByGroup(ctx context.Context, groupID domain.GroupID, q ports.LocationQuery) ([]*domain.LocationSample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.LocationSample
	for _, sample := range r.samples[groupID] {
		if q.UserID != "" && sample.UserID != q.UserID {
			continue
		}
		if q.Since != nil && sample.Timestamp.Before(*q.Since) {
			continue
		}
		if q.Until != nil && sample.Timestamp.After(*q.Until) {
			continue
		}
		copied := *sample
		out = append(out, &copied)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
