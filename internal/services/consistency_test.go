package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/config"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/database"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

// memoryStatusCache keeps the overwrite/fill split of the Redis cache
type memoryStatusCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]models.SignalStatus
}

func newMemoryStatusCache() *memoryStatusCache {
	return &memoryStatusCache{entries: make(map[uuid.UUID]models.SignalStatus)}
}

func (c *memoryStatusCache) SetSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[status.SignalID] = *status
	return nil
}

func (c *memoryStatusCache) FillSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[status.SignalID]; ok {
		return false, nil
	}
	c.entries[status.SignalID] = *status
	return true, nil
}

func (c *memoryStatusCache) GetSignalStatus(ctx context.Context, signalID uuid.UUID) (*models.SignalStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.entries[signalID]
	if !ok {
		return nil, nil
	}
	return &status, nil
}

func (c *memoryStatusCache) expire(signalID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, signalID)
	c.mu.Unlock()
}

// interleavingStore runs a one-shot callback at chosen points of a store
// call so tests can land a concurrent write between a read and a write
type interleavingStore struct {
	Store

	mu                  sync.Mutex
	afterLatestResponse func()
	afterCommitAccept   func()
	onResponderTouch    func()
}

func (s *interleavingStore) arm(slot *func(), fn func()) {
	s.mu.Lock()
	*slot = fn
	s.mu.Unlock()
}

func (s *interleavingStore) fire(slot *func()) {
	s.mu.Lock()
	fn := *slot
	*slot = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *interleavingStore) GetLatestResponse(ctx context.Context, signalID uuid.UUID) (*models.Response, error) {
	resp, err := s.Store.GetLatestResponse(ctx, signalID)
	s.fire(&s.afterLatestResponse)
	return resp, err
}

func (s *interleavingStore) CommitAccept(ctx context.Context, sig *models.Signal, resp *models.Response) error {
	if err := s.Store.CommitAccept(ctx, sig, resp); err != nil {
		return err
	}
	s.fire(&s.afterCommitAccept)
	return nil
}

func (s *interleavingStore) GetResponder(ctx context.Context, id string) (*models.ResponderProfile, error) {
	r, err := s.Store.GetResponder(ctx, id)
	s.fire(&s.onResponderTouch)
	return r, err
}

func (s *interleavingStore) IncrementResponderStat(ctx context.Context, id string, stat models.ResponderStat, at time.Time) error {
	s.fire(&s.onResponderTouch)
	return s.Store.IncrementResponderStat(ctx, id, stat, at)
}

func TestStatsUpdateKeepsResponderOwnedFields(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{Store: database.NewMemoryDB()}
	svc := NewCoordinationService(config.Default(), store, nil)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)

	// the responder goes offline right as the accept is being counted
	store.arm(&store.afterCommitAccept, func() {
		store.arm(&store.onResponderTouch, func() {
			_, err := svc.SetAvailability(ctx, "x", false)
			require.NoError(t, err)
		})
	})
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	r, err := svc.GetResponder(ctx, "x")
	require.NoError(t, err)
	assert.False(t, r.Available)
	assert.Equal(t, 1, r.Stats.Accepted)
	_, indexed := svc.responders.Get("x")
	assert.False(t, indexed)

	// and reports a new position while the completion is being counted
	moved := models.Location{Lat: 6.95, Lng: 79.87}
	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseAssisting, nil)
	require.NoError(t, err)
	store.arm(&store.onResponderTouch, func() {
		_, err := svc.UpdateResponderLocation(ctx, "x", moved)
		require.NoError(t, err)
	})
	_, err = svc.CompleteRescue(ctx, resp.ID, "x", models.CompletionRecord{
		Outcome:      models.OutcomeRescuedSafe,
		VictimStatus: models.VictimSafe,
	})
	require.NoError(t, err)

	r, err = svc.GetResponder(ctx, "x")
	require.NoError(t, err)
	require.NotNil(t, r.Location)
	assert.Equal(t, moved, *r.Location)
	assert.False(t, r.Available)
	assert.Equal(t, 1, r.Stats.Accepted)
	assert.Equal(t, 1, r.Stats.Completed)
}

func TestStatusReadCannotMaskNewerTransition(t *testing.T) {
	ctx := context.Background()
	store := &interleavingStore{Store: database.NewMemoryDB()}
	cache := newMemoryStatusCache()
	svc := NewCoordinationService(config.Default(), store, cache)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)

	cache.expire(sig.ID)
	store.arm(&store.afterLatestResponse, func() {
		_, err := svc.AcceptSignal(ctx, "x", sig.ID)
		require.NoError(t, err)
	})

	// this poll read the signal before the accept committed
	status, err := svc.GetSignalStatus(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalPending, status.Status)

	status, err = svc.GetSignalStatus(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalAcknowledged, status.Status)
	assert.Equal(t, models.ResponseAssigned, status.ResponseStatus)
}

func TestStatusReadFillsEmptyCache(t *testing.T) {
	ctx := context.Background()
	cache := newMemoryStatusCache()
	svc := NewCoordinationService(config.Default(), database.NewMemoryDB(), cache)
	sig := raise(t, svc, models.LevelMedical)

	cached, err := cache.GetSignalStatus(ctx, sig.ID)
	require.NoError(t, err)
	require.NotNil(t, cached, "a new signal is cached on creation")

	cache.expire(sig.ID)
	_, err = svc.GetSignalStatus(ctx, sig.ID)
	require.NoError(t, err)
	cached, err = cache.GetSignalStatus(ctx, sig.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, models.SignalPending, cached.Status)
}

func TestLocatedUpdateFromOfflineResponder(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	_, err = svc.SetAvailability(ctx, "x", false)
	require.NoError(t, err)
	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, &victimLoc)
	require.NoError(t, err)

	_, indexed := svc.responders.Get("x")
	assert.False(t, indexed, "offline responders stay out of the index")

	r, err := svc.GetResponder(ctx, "x")
	require.NoError(t, err)
	assert.False(t, r.Available)
	require.NotNil(t, r.Location)
	assert.Equal(t, victimLoc, *r.Location)
}

func TestLocatedUpdateMovesResponder(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, &farLoc)
	require.NoError(t, err)

	loc, indexed := svc.responders.Get("x")
	require.True(t, indexed)
	assert.Equal(t, farLoc, loc)

	far, err := svc.CreateSignal(ctx, CreateSignalInput{ReporterID: "victim-2", Location: farLoc, Level: models.LevelFoodWater})
	require.NoError(t, err)

	nearby, err := svc.ListNearbySignals(ctx, "x")
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, far.ID, nearby[0].Signal.ID)
}

func TestListingsPickUpOtherInstances(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryDB()
	a := NewCoordinationService(config.Default(), store, nil)
	b := NewCoordinationService(config.Default(), store, nil)

	clock := time.Now()
	b.now = func() time.Time { return clock }
	require.NoError(t, b.Warm(ctx))

	addResponder(t, a, "x", nearLoc, "first_aid")
	sig := raise(t, a, models.LevelMedical)

	nearby, err := b.NearbySignalsAt(ctx, victimLoc, 5)
	require.NoError(t, err)
	assert.Empty(t, nearby, "not resynced yet")

	clock = clock.Add(31 * time.Second)
	nearby, err = b.NearbySignalsAt(ctx, victimLoc, 5)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, sig.ID, nearby[0].Signal.ID)
	assert.Equal(t, 1, b.responders.Len())

	_, err = a.MarkVictimSafe(ctx, sig.ID, victimID, nil)
	require.NoError(t, err)
	_, err = a.SetAvailability(ctx, "x", false)
	require.NoError(t, err)

	clock = clock.Add(31 * time.Second)
	nearby, err = b.NearbySignalsAt(ctx, victimLoc, 5)
	require.NoError(t, err)
	assert.Empty(t, nearby)
	assert.Equal(t, 0, b.signals.Len())
	assert.Equal(t, 0, b.responders.Len())
}

func TestResyncDisabled(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryDB()
	cfg := config.Default()
	cfg.IndexResyncSeconds = 0
	a := NewCoordinationService(config.Default(), store, nil)
	b := NewCoordinationService(cfg, store, nil)

	raise(t, a, models.LevelMedical)
	nearby, err := b.NearbySignalsAt(ctx, victimLoc, 5)
	require.NoError(t, err)
	assert.Empty(t, nearby)
}

func TestSignalCreatedLogFields(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	svc, _, _ := newTestService(t)
	raise(t, svc, models.LevelMedical)

	var created *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "signal created" {
			created = e
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, "medical", created.Data["emergency_level"])
	assert.NotContains(t, created.Data, "level")
}
