package geo_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/geo"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	colombo := models.Location{Lat: 6.9271, Lng: 79.8612}
	kandy := models.Location{Lat: 7.2906, Lng: 80.6337}

	d := geo.HaversineKm(colombo, kandy)

	assert.InDelta(t, 94.5, d, 1.0, "Colombo to Kandy is roughly 94 km as the crow flies")
	assert.InDelta(t, d, geo.HaversineKm(kandy, colombo), 1e-9, "distance must be symmetric")
	assert.Equal(t, 0.0, geo.HaversineKm(colombo, colombo))
}

func TestHaversineKm_OneDegreeOfLatitude(t *testing.T) {
	d := geo.HaversineKm(models.Location{Lat: 0, Lng: 0}, models.Location{Lat: 1, Lng: 0})
	assert.InDelta(t, 111.19, d, 0.01)
}

func TestIndexNearby_InclusiveBoundary(t *testing.T) {
	ix := geo.NewIndex()
	center := models.Location{Lat: 0, Lng: 0}
	edge := models.Location{Lat: 1, Lng: 0}
	ix.Upsert("edge", edge)

	exact := geo.HaversineKm(center, edge)

	hits := ix.Nearby(center, exact)
	require.Len(t, hits, 1, "a point exactly on the radius is nearby")
	assert.Equal(t, "edge", hits[0].ID)

	assert.Empty(t, ix.Nearby(center, exact-0.001))
}

func TestIndexNearby_SortedAndFiltered(t *testing.T) {
	ix := geo.NewIndex()
	center := models.Location{Lat: 6.9271, Lng: 79.8612}
	ix.Upsert("near", models.Location{Lat: 6.93, Lng: 79.85})
	ix.Upsert("mid", models.Location{Lat: 6.98, Lng: 79.87})
	ix.Upsert("far", models.Location{Lat: 7.2906, Lng: 80.6337})

	hits := ix.Nearby(center, 10)

	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.Equal(t, "mid", hits[1].ID)
	assert.Less(t, hits[0].DistanceKm, hits[1].DistanceKm)
}

func TestIndexUpsertAndRemove(t *testing.T) {
	ix := geo.NewIndex()
	ix.Upsert("a", models.Location{Lat: 1, Lng: 1})
	ix.Upsert("a", models.Location{Lat: 2, Lng: 2})

	loc, ok := ix.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2.0, loc.Lat, "upsert replaces the previous position")
	assert.Equal(t, 1, ix.Len())

	ix.Remove("a")
	_, ok = ix.Get("a")
	assert.False(t, ok)
	assert.Empty(t, ix.Nearby(models.Location{Lat: 2, Lng: 2}, 100))
}

func TestIndexNearby_NegativeRadius(t *testing.T) {
	ix := geo.NewIndex()
	ix.Upsert("a", models.Location{Lat: 1, Lng: 1})
	assert.Empty(t, ix.Nearby(models.Location{Lat: 1, Lng: 1}, -1))
}

func TestIndex_ConcurrentAccess(t *testing.T) {
	ix := geo.NewIndex()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			ix.Upsert(string(rune('a'+i%26)), models.Location{Lat: float64(i % 10), Lng: 0})
		}(i)
		go func() {
			defer wg.Done()
			_ = ix.Nearby(models.Location{}, 500)
		}()
	}
	wg.Wait()
	assert.Equal(t, 26, ix.Len())
}

func TestValidLocation(t *testing.T) {
	assert.True(t, geo.ValidLocation(models.Location{Lat: 6.9, Lng: 79.8}))
	assert.False(t, geo.ValidLocation(models.Location{Lat: 91, Lng: 0}))
	assert.False(t, geo.ValidLocation(models.Location{Lat: 0, Lng: -181}))
}

func TestIndexSync(t *testing.T) {
	a := models.Location{Lat: 1, Lng: 1}
	b := models.Location{Lat: 2, Lng: 2}

	ix := geo.NewIndex()
	ix.Upsert("stale", a)
	ix.Upsert("moved", a)
	ix.Upsert("closed-here", a)

	mark := ix.Mark()
	// writes landing while the snapshot is being read
	ix.Upsert("fresh", a)
	ix.Remove("closed-here")

	added, dropped := ix.Sync(map[string]models.Location{
		"moved":       b,
		"remote":      b,
		"closed-here": a,
	}, mark)

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, dropped)

	_, ok := ix.Get("stale")
	assert.False(t, ok, "entries missing from the snapshot are dropped")
	loc, _ := ix.Get("moved")
	assert.Equal(t, b, loc)
	_, ok = ix.Get("remote")
	assert.True(t, ok)
	_, ok = ix.Get("fresh")
	assert.True(t, ok, "local writes after the mark survive")
	_, ok = ix.Get("closed-here")
	assert.False(t, ok, "local removals after the mark survive")

	// once reconciled, the next sync treats everything as old
	_, dropped = ix.Sync(map[string]models.Location{}, ix.Mark())
	assert.Equal(t, 3, dropped)
	assert.Equal(t, 0, ix.Len())
}
