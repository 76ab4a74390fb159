package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/store"
)

const testIndex = "traffic-data"

func testSegment(id string) domain.TrafficSegment {
	return domain.TrafficSegment{ObsID: id + "---2024-05-10T14:30:00", PublishedTime: "2024-05-10T14:30:00"}
}

func TestWriteIfAbsent_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	w := NewIndexWriter(mem)
	doc := testSegment("7")

	res, err := w.WriteIfAbsent(context.Background(), testIndex, doc)
	require.NoError(t, err)
	assert.Equal(t, Written, res)

	res, err = w.WriteIfAbsent(context.Background(), testIndex, doc)
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, res)

	assert.Equal(t, 1, mem.Count(testIndex))
	_, ok := mem.Get(testIndex, doc.IdentityKey())
	assert.True(t, ok)
}

// racingStore reports a document as absent, then loses the create race.
type racingStore struct {
	*store.Memory
}

func (racingStore) Exists(context.Context, string, string) (bool, error) { return false, nil }

func (racingStore) Create(context.Context, string, string, any) (bool, error) { return false, nil }

func TestWriteIfAbsent_LostCreateRace(t *testing.T) {
	w := NewIndexWriter(racingStore{Memory: store.NewMemory()})

	res, err := w.WriteIfAbsent(context.Background(), testIndex, testSegment("7"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, res)
}

func TestWriteIfAbsent_StoreUnavailable(t *testing.T) {
	mem := store.NewMemory()
	mem.SetError(fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable))
	w := NewIndexWriter(mem)

	_, err := w.WriteIfAbsent(context.Background(), testIndex, testSegment("7"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "7---2024-05-10T14:30:00")
}

func TestWriteResultString(t *testing.T) {
	assert.Equal(t, "written", Written.String())
	assert.Equal(t, "already_present", AlreadyPresent.String())
	assert.Equal(t, "unknown", WriteResult(0).String())
}
