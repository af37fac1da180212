package memory

import (
	"context"
	"testing"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(user domain.UserID, group domain.GroupID, at time.Time, lat float64) *domain.LocationSample {
	return &domain.LocationSample{
		UserID:      user,
		GroupID:     group,
		Timestamp:   at,
		Coordinates: domain.Coordinates{Latitude: lat, Longitude: 0},
	}
}

func TestLocationRepository_NewestFirst(t *testing.T) {
	r := NewMemoryLocationRepository()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, r.Insert(ctx, sampleAt("alice", "g1", base, 1)))
	require.NoError(t, r.Insert(ctx, sampleAt("alice", "g1", base.Add(time.Minute), 2)))
	require.NoError(t, r.Insert(ctx, sampleAt("bob", "g1", base.Add(2*time.Minute), 3)))

	samples, err := r.FindByGroup(ctx, "g1", ports.LocationQuery{})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 3.0, samples[0].Coordinates.Latitude)
	assert.Equal(t, 1.0, samples[2].Coordinates.Latitude)
}

func TestLocationRepository_Filters(t *testing.T) {
	r := NewMemoryLocationRepository()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, r.Insert(ctx, sampleAt("alice", "g1", base, 1)))
	require.NoError(t, r.Insert(ctx, sampleAt("bob", "g1", base.Add(time.Minute), 2)))
	require.NoError(t, r.Insert(ctx, sampleAt("alice", "g1", base.Add(2*time.Minute), 3)))
	require.NoError(t, r.Insert(ctx, sampleAt("alice", "g2", base, 4)))

	byUser, err := r.FindByGroup(ctx, "g1", ports.LocationQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	since := base.Add(30 * time.Second)
	recent, err := r.FindByGroup(ctx, "g1", ports.LocationQuery{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	until := base.Add(30 * time.Second)
	early, err := r.FindByGroup(ctx, "g1", ports.LocationQuery{Until: &until})
	require.NoError(t, err)
	assert.Len(t, early, 1)

	limited, err := r.FindByGroup(ctx, "g1", ports.LocationQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 3.0, limited[0].Coordinates.Latitude)

	empty, err := r.FindByGroup(ctx, "g3", ports.LocationQuery{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocationRepository_InsertCopiesSample(t *testing.T) {
	r := NewMemoryLocationRepository()
	ctx := context.Background()

	sample := sampleAt("alice", "g1", time.Now(), 1)
	require.NoError(t, r.Insert(ctx, sample))
	sample.Coordinates.Latitude = 99

	samples, err := r.FindByGroup(ctx, "g1", ports.LocationQuery{})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1.0, samples[0].Coordinates.Latitude)
}
