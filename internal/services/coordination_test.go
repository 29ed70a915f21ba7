package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/config"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/database"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) events(typ models.EventType) []models.Event {
	var out []models.Event
	for _, call := range m.Calls {
		evt := call.Arguments.Get(1).(models.Event)
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

type mockStatusCache struct {
	mock.Mock
}

func (m *mockStatusCache) SetSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) error {
	args := m.Called(ctx, status, ttl)
	return args.Error(0)
}

func (m *mockStatusCache) FillSignalStatus(ctx context.Context, status *models.SignalStatus, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, status, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockStatusCache) GetSignalStatus(ctx context.Context, signalID uuid.UUID) (*models.SignalStatus, error) {
	args := m.Called(ctx, signalID)
	status, _ := args.Get(0).(*models.SignalStatus)
	return status, args.Error(1)
}

var (
	victimLoc = models.Location{Lat: 6.9271, Lng: 79.8612}
	nearLoc   = models.Location{Lat: 6.93, Lng: 79.85}
	farLoc    = models.Location{Lat: 7.9271, Lng: 79.8612}
)

const victimID = "victim-1"

func newTestService(t *testing.T) (*CoordinationService, *database.MemoryDB, *mockPublisher) {
	t.Helper()
	store := database.NewMemoryDB()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	return NewCoordinationService(config.Default(), store, nil, pub), store, pub
}

// addResponder registers a verified, available responder at loc
func addResponder(t *testing.T, svc *CoordinationService, id string, loc models.Location, certs ...string) {
	t.Helper()
	ctx := context.Background()

	_, err := svc.UpsertResponder(ctx, id, ResponderInput{Name: id, AvailabilityRadiusKm: 10})
	require.NoError(t, err)

	cs := models.Certifications{}
	for _, c := range certs {
		cs = append(cs, models.Certification{Type: c, Verified: true})
	}
	_, err = svc.ApplyCertifications(ctx, id, cs, models.VerificationVerified)
	require.NoError(t, err)

	_, err = svc.UpdateResponderLocation(ctx, id, loc)
	require.NoError(t, err)
	_, err = svc.SetAvailability(ctx, id, true)
	require.NoError(t, err)
}

func raise(t *testing.T, svc *CoordinationService, level models.EmergencyLevel) *models.Signal {
	t.Helper()
	sig, err := svc.CreateSignal(context.Background(), CreateSignalInput{
		ReporterID:  victimID,
		DeviceToken: "victim-token",
		Location:    victimLoc,
		Level:       level,
		Message:     "need help",
	})
	require.NoError(t, err)
	return sig
}

func TestAcceptAcknowledgesSignal(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)

	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseAssigned, resp.Status)
	require.NotNil(t, resp.DistanceKm)
	assert.InDelta(t, 1.28, *resp.DistanceKm, 0.05)

	stored, err := store.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalAcknowledged, stored.Status)

	accepted := pub.events(models.EventSignalAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, "x", accepted[0].ResponderID)
	assert.Equal(t, "victim-token", accepted[0].Recipients[0].DeviceToken)

	x, err := svc.GetResponder(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, x.Stats.Accepted)
}

func TestSecondAcceptIsAlreadyAssigned(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	addResponder(t, svc, "y", nearLoc, "paramedic")
	sig := raise(t, svc, models.LevelMedical)

	_, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	_, err = svc.AcceptSignal(ctx, "y", sig.ID)
	assert.ErrorIs(t, err, utils.ErrAlreadyAssigned)
}

func TestStatusUpdatesMoveSignalToResponding(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	for _, status := range []models.ResponseState{models.ResponseEnRoute, models.ResponseArrived, models.ResponseAssisting} {
		resp, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", status, nil)
		require.NoError(t, err)
		assert.Equal(t, status, resp.Status)

		stored, err := store.GetSignal(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SignalResponding, stored.Status)
	}

	assert.Len(t, resp.StatusHistory, 4)
	assert.Len(t, pub.events(models.EventResponseStatusChanged), 3)
}

func TestCompleteRescueResolvesSignal(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)
	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseAssisting, nil)
	require.NoError(t, err)

	done, err := svc.CompleteRescue(ctx, resp.ID, "x", models.CompletionRecord{
		Outcome:      models.OutcomeRescuedSafe,
		VictimStatus: models.VictimSafe,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ResponseCompleted, done.Status)
	require.NotNil(t, done.Completion)
	assert.False(t, done.Completion.CompletedAt.IsZero())

	stored, err := store.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalResolved, stored.Status)
	assert.NotNil(t, stored.ClosedAt)

	assert.Len(t, pub.events(models.EventSignalResolved), 1)
	assert.Empty(t, pub.events(models.EventMissingPersonReported))

	x, err := svc.GetResponder(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, x.Stats.Completed)

	nearby, err := svc.NearbySignalsAt(ctx, victimLoc, 5)
	require.NoError(t, err)
	assert.Empty(t, nearby)
}

func TestMarkSafeBeforeAnyResponder(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)
	sig := raise(t, svc, models.LevelFoodWater)

	closed, err := svc.MarkVictimSafe(ctx, sig.ID, victimID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SignalFalseAlarm, closed.Status)

	latest, err := store.GetLatestResponse(ctx, sig.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	cancelled := pub.events(models.EventSignalCancelled)
	require.Len(t, cancelled, 1)
	assert.Nil(t, cancelled[0].ResponseID)
}

func TestConcurrentAcceptsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	const n = 25
	for i := 0; i < n; i++ {
		addResponder(t, svc, fmt.Sprintf("r-%d", i), nearLoc, "firefighter")
	}
	sig := raise(t, svc, models.LevelLifeThreatening)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		assigned int
		other    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := svc.AcceptSignal(ctx, id, sig.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, utils.ErrAlreadyAssigned):
				assigned++
			default:
				other = append(other, err)
			}
		}(fmt.Sprintf("r-%d", i))
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, assigned)

	active, err := store.GetActiveResponse(ctx, sig.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Zero(t, svc.ledger.locks.size())
}

func TestUnverifiedResponderIsNeverEligible(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.UpsertResponder(ctx, "p", ResponderInput{Name: "p", AvailabilityRadiusKm: 10})
	require.NoError(t, err)
	_, err = svc.ApplyCertifications(ctx, "p", models.Certifications{{Type: "firefighter", Verified: true}}, models.VerificationPending)
	require.NoError(t, err)
	_, err = svc.UpdateResponderLocation(ctx, "p", victimLoc)
	require.NoError(t, err)
	_, err = svc.SetAvailability(ctx, "p", true)
	require.NoError(t, err)

	sig := raise(t, svc, models.LevelFoodWater)
	_, err = svc.AcceptSignal(ctx, "p", sig.ID)
	require.ErrorIs(t, err, utils.ErrNotEligible)

	svcErr, ok := utils.AsServiceError(err)
	require.True(t, ok)
	assert.Contains(t, svcErr.Details, ReasonUnverified)
}

func TestLevelGating(t *testing.T) {
	tests := []struct {
		name  string
		certs []string
		level models.EmergencyLevel
		ok    bool
	}{
		{"no certs level 1", nil, models.LevelFoodWater, true},
		{"no certs level 2", nil, models.LevelMedical, false},
		{"no certs level 3", nil, models.LevelLifeThreatening, false},
		{"medical level 2", []string{"nurse"}, models.LevelMedical, true},
		{"medical level 3", []string{"nurse"}, models.LevelLifeThreatening, false},
		{"rescue level 1", []string{"search_and_rescue"}, models.LevelFoodWater, true},
		{"rescue level 2", []string{"search_and_rescue"}, models.LevelMedical, true},
		{"rescue level 3", []string{"search_and_rescue"}, models.LevelLifeThreatening, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			addResponder(t, svc, "r", nearLoc, tt.certs...)
			sig := raise(t, svc, tt.level)

			_, err := svc.AcceptSignal(context.Background(), "r", sig.ID)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, utils.ErrNotEligible)
			}
		})
	}
}

func TestMarkSafeCancelsActiveResponse(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)
	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, nil)
	require.NoError(t, err)

	_, err = svc.MarkVictimSafe(ctx, sig.ID, "x", nil)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	closed, err := svc.MarkVictimSafe(ctx, sig.ID, victimID, &victimLoc)
	require.NoError(t, err)
	assert.Equal(t, models.SignalFalseAlarm, closed.Status)

	cancelled, err := store.GetResponse(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseCancelled, cancelled.Status)

	events := pub.events(models.EventSignalCancelled)
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].ResponderID)
	assert.Equal(t, &victimLoc, events[0].Location)
}

func TestMarkSafeRejectedAfterArrival(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)
	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseArrived, nil)
	require.NoError(t, err)

	_, err = svc.MarkVictimSafe(ctx, sig.ID, victimID, nil)
	assert.ErrorIs(t, err, utils.ErrCancellationWindowClosed)

	stored, err := store.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalResponding, stored.Status)
}

func TestWithdrawalReopensSignal(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	addResponder(t, svc, "y", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)

	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)
	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, nil)
	require.NoError(t, err)
	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseCancelled, nil)
	require.NoError(t, err)

	stored, err := store.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalPending, stored.Status)

	x, err := svc.GetResponder(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, x.Stats.Cancelled)

	second, err := svc.AcceptSignal(ctx, "y", sig.ID)
	require.NoError(t, err)
	assert.Equal(t, "y", second.ResponderID)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)
	_, err = svc.CompleteRescue(ctx, resp.ID, "x", models.CompletionRecord{
		Outcome:      models.OutcomeRescuedInjured,
		VictimStatus: models.VictimInjured,
	})
	require.NoError(t, err)

	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, nil)
	assert.ErrorIs(t, err, utils.ErrResponseClosed)

	_, err = svc.CompleteRescue(ctx, resp.ID, "x", models.CompletionRecord{
		Outcome:      models.OutcomeRescuedSafe,
		VictimStatus: models.VictimSafe,
	})
	assert.ErrorIs(t, err, utils.ErrResponseClosed)

	_, err = svc.MarkVictimSafe(ctx, sig.ID, victimID, nil)
	assert.ErrorIs(t, err, utils.ErrSignalAlreadyClosed)

	_, err = svc.AcceptSignal(ctx, "x", sig.ID)
	assert.ErrorIs(t, err, utils.ErrSignalAlreadyClosed)
}

func TestStatusUpdateRules(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	addResponder(t, svc, "y", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "y", models.ResponseEnRoute, nil)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseArrived, nil)
	require.NoError(t, err)

	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, nil)
	assert.ErrorIs(t, err, utils.ErrInvalidTransition)

	_, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseCompleted, nil)
	assert.ErrorIs(t, err, utils.ErrInvalidTransition)

	_, err = svc.UpdateResponseStatus(ctx, uuid.New(), "x", models.ResponseEnRoute, nil)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestLocatedUpdateRecomputesDistance(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	resp, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, &victimLoc)
	require.NoError(t, err)
	require.NotNil(t, resp.DistanceKm)
	assert.InDelta(t, 0, *resp.DistanceKm, 1e-9)

	// same status with a location only records it
	moved := models.Location{Lat: 6.928, Lng: 79.8612}
	resp, err = svc.UpdateResponseStatus(ctx, resp.ID, "x", models.ResponseEnRoute, &moved)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseEnRoute, resp.Status)
	assert.Len(t, resp.StatusHistory, 3)
	assert.InDelta(t, 0.1, *resp.DistanceKm, 0.01)
}

func TestMissingPersonEntryIsForwarded(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "firefighter")
	sig := raise(t, svc, models.LevelLifeThreatening)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	_, err = svc.CompleteRescue(ctx, resp.ID, "x", models.CompletionRecord{
		Outcome:                  models.OutcomeNotFound,
		VictimStatus:             models.VictimMissing,
		CreateMissingPersonEntry: true,
	})
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	_, err = svc.CompleteRescue(ctx, resp.ID, "x", models.CompletionRecord{
		Outcome:                  models.OutcomeNotFound,
		VictimStatus:             models.VictimMissing,
		CreateMissingPersonEntry: true,
		MissingPerson:            &models.MissingPersonEntry{Name: "Ama", Age: 34, LastSeen: &victimLoc},
	})
	require.NoError(t, err)

	reported := pub.events(models.EventMissingPersonReported)
	require.Len(t, reported, 1)
	require.NotNil(t, reported[0].MissingPerson)
	assert.Equal(t, "Ama", reported[0].MissingPerson.Name)
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	msg, err := svc.PostChatMessage(ctx, resp.ID, "x", "  on my way  ")
	require.NoError(t, err)
	assert.Equal(t, models.SenderResponder, msg.Role)
	assert.Equal(t, "on my way", msg.Text)

	msg, err = svc.PostChatMessage(ctx, resp.ID, victimID, "thank you")
	require.NoError(t, err)
	assert.Equal(t, models.SenderVictim, msg.Role)

	_, err = svc.PostChatMessage(ctx, resp.ID, "stranger", "hi")
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = svc.PostChatMessage(ctx, resp.ID, "x", "   ")
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	messages, err := svc.ListChat(ctx, resp.ID, victimID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "on my way", messages[0].Text)

	_, err = svc.ListChat(ctx, resp.ID, "stranger")
	assert.ErrorIs(t, err, utils.ErrForbidden)

	assert.Len(t, pub.events(models.EventChatMessagePosted), 2)

	_, err = svc.CompleteRescue(ctx, resp.ID, "x", models.CompletionRecord{
		Outcome:      models.OutcomeRescuedSafe,
		VictimStatus: models.VictimSafe,
	})
	require.NoError(t, err)

	_, err = svc.PostChatMessage(ctx, resp.ID, victimID, "one more thing")
	assert.ErrorIs(t, err, utils.ErrResponseClosed)
}

func TestListNearbySignalsAnnotatesEligibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	addResponder(t, svc, "basic", nearLoc)

	food := raise(t, svc, models.LevelFoodWater)
	critical := raise(t, svc, models.LevelLifeThreatening)
	_, err := svc.CreateSignal(ctx, CreateSignalInput{
		ReporterID: "far-away",
		Location:   farLoc,
		Level:      models.LevelFoodWater,
	})
	require.NoError(t, err)

	nearby, err := svc.ListNearbySignals(ctx, "basic")
	require.NoError(t, err)
	require.Len(t, nearby, 2)

	// higher priority first
	assert.Equal(t, critical.ID, nearby[0].Signal.ID)
	assert.False(t, nearby[0].CanAccept)
	assert.Equal(t, []string{ReasonCertificationRequired}, nearby[0].Reasons)

	assert.Equal(t, food.ID, nearby[1].Signal.ID)
	assert.True(t, nearby[1].CanAccept)
	assert.Empty(t, nearby[1].Reasons)

	_, err = svc.ListNearbySignals(ctx, "nobody")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestCreateSignalNotifiesNearbyResponders(t *testing.T) {
	svc, _, pub := newTestService(t)
	addResponder(t, svc, "near", nearLoc, "first_aid")
	addResponder(t, svc, "far", farLoc, "first_aid")
	addResponder(t, svc, "basic", nearLoc)

	_, err := svc.UpsertResponder(context.Background(), "near", ResponderInput{
		Name: "near", DeviceToken: "near-token", AvailabilityRadiusKm: 10,
	})
	require.NoError(t, err)

	raise(t, svc, models.LevelMedical)

	created := pub.events(models.EventSignalCreated)
	require.Len(t, created, 1)
	require.Len(t, created[0].Recipients, 1)
	assert.Equal(t, "near-token", created[0].Recipients[0].DeviceToken)
}

func TestCreateSignalValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSignal(ctx, CreateSignalInput{ReporterID: victimID, Location: victimLoc, Level: 4})
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	_, err = svc.CreateSignal(ctx, CreateSignalInput{ReporterID: victimID, Location: models.Location{Lat: 91}, Level: 1})
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	_, err = svc.CreateSignal(ctx, CreateSignalInput{Location: victimLoc, Level: 1})
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	sig, err := svc.CreateSignal(ctx, CreateSignalInput{ReporterID: victimID, Location: victimLoc, Level: models.LevelMedical})
	require.NoError(t, err)
	assert.Equal(t, 2, sig.Priority)
	assert.Equal(t, "app", sig.Source)
	assert.Equal(t, models.SignalPending, sig.Status)
}

func TestGetSignalStatusUsesCache(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryDB()
	cache := &mockStatusCache{}
	cache.On("SetSignalStatus", mock.Anything, mock.Anything, time.Minute).Return(nil)
	cache.On("FillSignalStatus", mock.Anything, mock.Anything, time.Minute).Return(true, nil)
	svc := NewCoordinationService(config.Default(), store, cache)

	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)
	resp, err := svc.AcceptSignal(ctx, "x", sig.ID)
	require.NoError(t, err)

	cached := &models.SignalStatus{SignalID: sig.ID, Status: models.SignalAcknowledged}
	cache.On("GetSignalStatus", mock.Anything, sig.ID).Return(cached, nil).Once()
	status, err := svc.GetSignalStatus(ctx, sig.ID)
	require.NoError(t, err)
	assert.Same(t, cached, status)

	// miss falls back to the store
	cache.On("GetSignalStatus", mock.Anything, sig.ID).Return(nil, nil).Once()
	status, err = svc.GetSignalStatus(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalAcknowledged, status.Status)
	assert.Equal(t, models.ResponseAssigned, status.ResponseStatus)
	require.NotNil(t, status.ResponseID)
	assert.Equal(t, resp.ID, *status.ResponseID)

	cache.AssertExpectations(t)
}

func TestWarmRebuildsIndexes(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	addResponder(t, svc, "x", nearLoc, "first_aid")
	sig := raise(t, svc, models.LevelMedical)

	fresh := NewCoordinationService(config.Default(), store, nil)
	require.NoError(t, fresh.Warm(ctx))

	nearby, err := fresh.ListNearbySignals(ctx, "x")
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, sig.ID, nearby[0].Signal.ID)
	assert.Equal(t, 1, fresh.responders.Len())
}
