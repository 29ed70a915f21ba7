package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

// MemoryDB is a process-local store with the same atomicity and versioning
// rules as PostgresDB. Used with STORAGE_DRIVER=memory and in tests.
type MemoryDB struct {
	mu         sync.RWMutex
	signals    map[uuid.UUID]models.Signal
	responders map[string]models.ResponderProfile
	responses  map[uuid.UUID]models.Response
	bySignal   map[uuid.UUID][]uuid.UUID
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		signals:    make(map[uuid.UUID]models.Signal),
		responders: make(map[string]models.ResponderProfile),
		responses:  make(map[uuid.UUID]models.Response),
		bySignal:   make(map[uuid.UUID][]uuid.UUID),
	}
}

// Signal operations
func (m *MemoryDB) CreateSignal(ctx context.Context, sig *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.signals[sig.ID]; exists {
		return utils.ErrInvalidRequest.WithDetails("signal %s already exists", sig.ID)
	}
	sig.Version = 1
	m.signals[sig.ID] = *sig
	return nil
}

func (m *MemoryDB) GetSignal(ctx context.Context, id uuid.UUID) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sig, ok := m.signals[id]
	if !ok {
		return nil, nil
	}
	return &sig, nil
}

func (m *MemoryDB) GetSignals(ctx context.Context, ids []uuid.UUID) ([]models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	signals := make([]models.Signal, 0, len(ids))
	for _, id := range ids {
		if sig, ok := m.signals[id]; ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (m *MemoryDB) ListOpenSignals(ctx context.Context) ([]models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var signals []models.Signal
	for _, sig := range m.signals {
		if !sig.Status.Terminal() {
			signals = append(signals, sig)
		}
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].CreatedAt.Before(signals[j].CreatedAt) })
	return signals, nil
}

// Responder operations
func (m *MemoryDB) SaveResponder(ctx context.Context, r *models.ResponderProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := cloneResponder(*r)
	if cur, ok := m.responders[r.ID]; ok {
		next.Available = cur.Available
		next.Location = cur.Location
		next.LocationUpdatedAt = cur.LocationUpdatedAt
		next.Stats = cur.Stats
		next.CreatedAt = cur.CreatedAt
	}
	m.responders[r.ID] = next
	return nil
}

func (m *MemoryDB) SetResponderAvailability(ctx context.Context, id string, available bool, at time.Time) error {
	return m.updateResponder(id, at, func(r *models.ResponderProfile) {
		r.Available = available
	})
}

func (m *MemoryDB) SetResponderLocation(ctx context.Context, id string, loc models.Location, at time.Time) error {
	return m.updateResponder(id, at, func(r *models.ResponderProfile) {
		r.Location = &loc
		r.LocationUpdatedAt = &at
	})
}

func (m *MemoryDB) IncrementResponderStat(ctx context.Context, id string, stat models.ResponderStat, at time.Time) error {
	if !stat.Valid() {
		return utils.ErrInvalidRequest.WithDetails("unknown stat %q", stat)
	}
	return m.updateResponder(id, at, func(r *models.ResponderProfile) {
		r.Stats.Increment(stat)
	})
}

func (m *MemoryDB) updateResponder(id string, at time.Time, fn func(*models.ResponderProfile)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.responders[id]
	if !ok {
		return utils.ErrNotFound.WithDetails("responder %s", id)
	}
	fn(&r)
	r.UpdatedAt = at
	m.responders[id] = r
	return nil
}

func (m *MemoryDB) GetResponder(ctx context.Context, id string) (*models.ResponderProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.responders[id]
	if !ok {
		return nil, nil
	}
	r = cloneResponder(r)
	return &r, nil
}

func (m *MemoryDB) ListAvailableResponders(ctx context.Context) ([]models.ResponderProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ResponderProfile
	for _, r := range m.responders {
		if r.Available {
			out = append(out, cloneResponder(r))
		}
	}
	return out, nil
}

// Response operations
func (m *MemoryDB) GetResponse(ctx context.Context, id uuid.UUID) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resp, ok := m.responses[id]
	if !ok {
		return nil, nil
	}
	resp = cloneResponse(resp)
	return &resp, nil
}

func (m *MemoryDB) GetActiveResponse(ctx context.Context, signalID uuid.UUID) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if resp := m.activeLocked(signalID); resp != nil {
		cp := cloneResponse(*resp)
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryDB) GetLatestResponse(ctx context.Context, signalID uuid.UUID) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.bySignal[signalID]
	if len(ids) == 0 {
		return nil, nil
	}
	resp := cloneResponse(m.responses[ids[len(ids)-1]])
	return &resp, nil
}

func (m *MemoryDB) CommitAccept(ctx context.Context, sig *models.Signal, resp *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.signals[sig.ID]
	if !ok {
		return utils.ErrNotFound.WithDetails("signal %s", sig.ID)
	}
	if m.activeLocked(sig.ID) != nil {
		return utils.ErrAlreadyAssigned
	}
	if stored.Status.Terminal() {
		return utils.ErrSignalAlreadyClosed
	}
	if stored.Version != sig.Version {
		return utils.ErrConflict
	}

	sig.Version++
	resp.Version = 1
	m.signals[sig.ID] = *sig
	m.responses[resp.ID] = cloneResponse(*resp)
	m.bySignal[sig.ID] = append(m.bySignal[sig.ID], resp.ID)
	return nil
}

func (m *MemoryDB) SaveTransition(ctx context.Context, sig *models.Signal, resp *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sig != nil {
		stored, ok := m.signals[sig.ID]
		if !ok {
			return utils.ErrNotFound.WithDetails("signal %s", sig.ID)
		}
		if stored.Version != sig.Version {
			return utils.ErrConflict
		}
	}
	if resp != nil {
		stored, ok := m.responses[resp.ID]
		if !ok {
			return utils.ErrNotFound.WithDetails("response %s", resp.ID)
		}
		if stored.Version != resp.Version {
			return utils.ErrConflict
		}
	}

	if sig != nil {
		sig.Version++
		m.signals[sig.ID] = *sig
	}
	if resp != nil {
		resp.Version++
		m.responses[resp.ID] = cloneResponse(*resp)
	}
	return nil
}

func (m *MemoryDB) activeLocked(signalID uuid.UUID) *models.Response {
	for _, id := range m.bySignal[signalID] {
		resp := m.responses[id]
		if !resp.Status.Terminal() {
			return &resp
		}
	}
	return nil
}

// Stored values must not share slices with the caller's copies.
func cloneResponse(r models.Response) models.Response {
	r.StatusHistory = append(models.StatusHistory(nil), r.StatusHistory...)
	r.Messages = append(models.ChatLog(nil), r.Messages...)
	if r.Completion != nil {
		c := *r.Completion
		r.Completion = &c
	}
	if r.DistanceKm != nil {
		d := *r.DistanceKm
		r.DistanceKm = &d
	}
	return r
}

func cloneResponder(r models.ResponderProfile) models.ResponderProfile {
	r.Certifications = append(models.Certifications(nil), r.Certifications...)
	r.AllowedLevels = append(models.LevelSet(nil), r.AllowedLevels...)
	if r.Location != nil {
		loc := *r.Location
		r.Location = &loc
	}
	return r
}
