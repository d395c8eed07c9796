package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Touch(t *testing.T) {
	rec := &Record{
		ID:             "person_1",
		LastDetected:   1000,
		DetectionCount: 1,
		SessionIDs:     []string{"session_a"},
	}

	rec.Touch(2000, "session_b")
	assert.Equal(t, 2, rec.DetectionCount)
	assert.Equal(t, int64(2000), rec.LastDetected)
	assert.Equal(t, []string{"session_a", "session_b"}, rec.SessionIDs)

	// A repeated sighting in the same session does not duplicate the id.
	rec.Touch(3000, "session_b")
	assert.Equal(t, 3, rec.DetectionCount)
	assert.Equal(t, []string{"session_a", "session_b"}, rec.SessionIDs)
}

func TestCollectStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testRecord("person_1")))
	require.NoError(t, store.Put(ctx, testRecord("person_2")))

	stats, err := CollectStats(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFaces)
	assert.Equal(t, 4, stats.TotalDetections)
}

func TestCollectStats_Empty(t *testing.T) {
	store := newTestStore(t)

	stats, err := CollectStats(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestStoreErrors_Distinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNotFound, ErrDuplicateKey))
	assert.False(t, errors.Is(ErrDuplicateKey, ErrUnavailable))
}
