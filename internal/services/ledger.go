package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/geo"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/lifecycle"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

// signalLocks hands out one mutex per signal id. Entries are reference
// counted and dropped once nobody holds or waits for them.
type signalLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*signalLock
}

type signalLock struct {
	mu   sync.Mutex
	refs int
}

func (l *signalLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &signalLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()

	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *signalLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// AcceptHook runs inside the signal's critical section right after a
// successful accept is committed
type AcceptHook func(sig *models.Signal, resp *models.Response)

// AssignmentLedger arbitrates accept races: first committed accept wins and
// no signal ever has two non-terminal responses.
type AssignmentLedger struct {
	store       Store
	eligibility *EligibilityEvaluator
	locks       *signalLocks
	now         func() time.Time
}

func NewAssignmentLedger(store Store, eligibility *EligibilityEvaluator) *AssignmentLedger {
	return &AssignmentLedger{
		store:       store,
		eligibility: eligibility,
		locks:       &signalLocks{locks: make(map[uuid.UUID]*signalLock)},
		now:         time.Now,
	}
}

// WithSignal runs fn while holding the signal's lock. Every mutation of a
// signal or its responses goes through here, which totally orders them.
func (l *AssignmentLedger) WithSignal(signalID uuid.UUID, fn func() error) error {
	unlock := l.locks.lock(signalID)
	defer unlock()
	return fn()
}

// TryAccept re-checks signal state, eligibility and the single-active-response
// rule, then creates the response and acknowledges the signal atomically.
// Losers get utils.ErrAlreadyAssigned and should not retry.
func (l *AssignmentLedger) TryAccept(ctx context.Context, signalID uuid.UUID, responderID string, hooks ...AcceptHook) (*models.Response, error) {
	var accepted *models.Response

	err := l.WithSignal(signalID, func() error {
		sig, err := l.store.GetSignal(ctx, signalID)
		if err != nil {
			return fmt.Errorf("failed to load signal: %w", err)
		}
		if sig == nil {
			return utils.ErrNotFound.WithDetails("signal %s", signalID)
		}
		if sig.Status.Terminal() {
			return utils.ErrSignalAlreadyClosed.WithDetails("signal %s is %s", sig.ID, sig.Status)
		}

		responder, err := l.store.GetResponder(ctx, responderID)
		if err != nil {
			return fmt.Errorf("failed to load responder: %w", err)
		}
		if responder == nil {
			return utils.ErrNotFound.WithDetails("responder %s", responderID)
		}
		if ok, reasons := l.eligibility.Evaluate(responder, sig); !ok {
			return utils.ErrNotEligible.WithDetails("%s", strings.Join(reasons, ", "))
		}

		active, err := l.store.GetActiveResponse(ctx, signalID)
		if err != nil {
			return fmt.Errorf("failed to check active response: %w", err)
		}
		if active != nil || !sig.Status.Open() {
			return utils.ErrAlreadyAssigned
		}

		now := l.now()
		resp := &models.Response{
			ID:          uuid.New(),
			SignalID:    sig.ID,
			ResponderID: responder.ID,
		}
		lifecycle.NewResponse(resp, now)
		if responder.Location != nil {
			d := geo.HaversineKm(*responder.Location, sig.Location)
			resp.DistanceKm = &d
			resp.StatusHistory[0].Location = responder.Location
		}

		if _, err := lifecycle.AdvanceSignal(sig, models.SignalAcknowledged, now); err != nil {
			return err
		}

		if err := l.store.CommitAccept(ctx, sig, resp); err != nil {
			if _, ok := utils.AsServiceError(err); ok {
				return err
			}
			return fmt.Errorf("failed to commit accept: %w", err)
		}

		for _, hook := range hooks {
			hook(sig, resp)
		}
		accepted = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}
