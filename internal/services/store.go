package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

// Store persists signals, responders and responses.
//
// Lookups return (nil, nil) when nothing matches. Signals and responses carry
// a version: writes succeed only if the stored version still equals the one
// the caller read, otherwise utils.ErrConflict is returned. On success the
// caller's copy has its version bumped.
type Store interface {
	CreateSignal(ctx context.Context, sig *models.Signal) error
	GetSignal(ctx context.Context, id uuid.UUID) (*models.Signal, error)
	GetSignals(ctx context.Context, ids []uuid.UUID) ([]models.Signal, error)
	ListOpenSignals(ctx context.Context) ([]models.Signal, error)

	// SaveResponder creates a profile or updates its profile fields. On an
	// existing row it leaves availability, location and stats alone: those
	// have their own writers below so concurrent updates never clobber them.
	SaveResponder(ctx context.Context, r *models.ResponderProfile) error
	SetResponderAvailability(ctx context.Context, id string, available bool, at time.Time) error
	SetResponderLocation(ctx context.Context, id string, loc models.Location, at time.Time) error
	IncrementResponderStat(ctx context.Context, id string, stat models.ResponderStat, at time.Time) error
	GetResponder(ctx context.Context, id string) (*models.ResponderProfile, error)
	ListAvailableResponders(ctx context.Context) ([]models.ResponderProfile, error)

	GetResponse(ctx context.Context, id uuid.UUID) (*models.Response, error)
	GetActiveResponse(ctx context.Context, signalID uuid.UUID) (*models.Response, error)
	GetLatestResponse(ctx context.Context, signalID uuid.UUID) (*models.Response, error)

	// CommitAccept inserts resp and saves sig as one atomic unit. It returns
	// utils.ErrAlreadyAssigned when the signal already has a non-terminal
	// response, whatever process created it.
	CommitAccept(ctx context.Context, sig *models.Signal, resp *models.Response) error

	// SaveTransition persists sig and resp (either may be nil) atomically.
	SaveTransition(ctx context.Context, sig *models.Signal, resp *models.Response) error
}

// EventPublisher receives domain events after they are committed
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// StatusCache holds polling snapshots so frequent status reads skip the store.
//
// Writers that just committed a transition call SetSignalStatus. The read
// path only ever calls FillSignalStatus, which stores the snapshot if no
// entry exists, so a slow reader cannot overwrite a newer snapshot.
type StatusCache interface {
	SetSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) error
	FillSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) (bool, error)
	GetSignalStatus(ctx context.Context, signalID uuid.UUID) (*models.SignalStatus, error)
}
