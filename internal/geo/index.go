package geo

import (
	"math"
	"sort"
	"sync"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

// EarthRadiusKm is the mean Earth radius used for all distance math
const EarthRadiusKm = 6371.0

// HaversineKm calculates the great-circle distance between two points in km
func HaversineKm(a, b models.Location) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// ValidLocation reports whether loc is a plausible WGS84 coordinate
func ValidLocation(loc models.Location) bool {
	return loc.Lat >= -90 && loc.Lat <= 90 && loc.Lng >= -180 && loc.Lng <= 180 &&
		!math.IsNaN(loc.Lat) && !math.IsNaN(loc.Lng)
}

// Hit is a single Nearby result
type Hit struct {
	ID         string
	DistanceKm float64
}

// Index keeps the last known position per id and answers radius queries
// with a linear haversine scan. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	points  map[string]point
	removed map[string]uint64
	seq     uint64
}

type point struct {
	loc models.Location
	seq uint64
}

func NewIndex() *Index {
	return &Index{
		points:  make(map[string]point),
		removed: make(map[string]uint64),
	}
}

func (ix *Index) Upsert(id string, loc models.Location) {
	ix.mu.Lock()
	ix.seq++
	ix.points[id] = point{loc: loc, seq: ix.seq}
	delete(ix.removed, id)
	ix.mu.Unlock()
}

func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	ix.seq++
	delete(ix.points, id)
	ix.removed[id] = ix.seq
	ix.mu.Unlock()
}

func (ix *Index) Get(id string) (models.Location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.points[id]
	return p.loc, ok
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.points)
}

// Mark returns a position in the index's write history. Take it before
// reading a snapshot from the store and hand it to Sync.
func (ix *Index) Mark() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.seq
}

// Sync makes the index match snapshot, except for ids written locally after
// mark: those are newer than the snapshot and win.
func (ix *Index) Sync(snapshot map[string]models.Location, mark uint64) (added, dropped int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for id, p := range ix.points {
		if _, ok := snapshot[id]; !ok && p.seq <= mark {
			delete(ix.points, id)
			dropped++
		}
	}
	for id, loc := range snapshot {
		if p, ok := ix.points[id]; ok && p.seq > mark {
			continue
		}
		if seq, ok := ix.removed[id]; ok && seq > mark {
			continue
		}
		if _, ok := ix.points[id]; !ok {
			added++
		}
		ix.seq++
		ix.points[id] = point{loc: loc, seq: ix.seq}
	}
	for id, seq := range ix.removed {
		if seq <= mark {
			delete(ix.removed, id)
		}
	}
	return added, dropped
}

// Nearby returns every id within radiusKm of center (boundary inclusive),
// closest first.
func (ix *Index) Nearby(center models.Location, radiusKm float64) []Hit {
	if radiusKm < 0 {
		return nil
	}

	ix.mu.RLock()
	hits := make([]Hit, 0)
	for id, p := range ix.points {
		d := HaversineKm(center, p.loc)
		if d <= radiusKm {
			hits = append(hits, Hit{ID: id, DistanceKm: d})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm == hits[j].DistanceKm {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	return hits
}
