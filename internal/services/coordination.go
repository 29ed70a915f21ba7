package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/config"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/geo"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/lifecycle"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

const (
	maxMessageLength = 1000
	maxChatLength    = 2000
)

// CreateSignalInput is what a victim's device (or the SMS gateway) sends
type CreateSignalInput struct {
	ReporterID    string
	ReporterPhone string
	DeviceToken   string
	Location      models.Location
	Level         models.EmergencyLevel
	Message       string
	Priority      int
	Source        string
}

// CoordinationService exposes the operations victim and responder devices call
type CoordinationService struct {
	cfg         *config.Config
	store       Store
	cache       StatusCache
	publishers  []EventPublisher
	eligibility *EligibilityEvaluator
	ledger      *AssignmentLedger
	signals     *geo.Index
	responders  *geo.Index
	log         *logrus.Entry
	now         func() time.Time

	syncMu   sync.Mutex
	lastSync time.Time
}

// NewCoordinationService wires the core. cache may be nil.
func NewCoordinationService(
	cfg *config.Config,
	store Store,
	cache StatusCache,
	publishers ...EventPublisher,
) *CoordinationService {
	eligibility := NewEligibilityEvaluator()
	return &CoordinationService{
		cfg:         cfg,
		store:       store,
		cache:       cache,
		publishers:  publishers,
		eligibility: eligibility,
		ledger:      NewAssignmentLedger(store, eligibility),
		signals:     geo.NewIndex(),
		responders:  geo.NewIndex(),
		log:         logrus.WithField("component", "coordination"),
		now:         time.Now,
	}
}

// Warm rebuilds the geo indexes from the store
func (s *CoordinationService) Warm(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if err := s.resyncIndexes(ctx); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"open_signals":         s.signals.Len(),
		"available_responders": s.responders.Len(),
	}).Info("geo indexes warmed")
	return nil
}

// maybeResync reconciles the indexes with the store once the resync interval
// has passed, picking up signals and responders written by other instances.
// Listings never wait on a resync already in progress.
func (s *CoordinationService) maybeResync(ctx context.Context) {
	if s.cfg.IndexResyncSeconds <= 0 || !s.syncMu.TryLock() {
		return
	}
	defer s.syncMu.Unlock()

	if s.now().Sub(s.lastSync) < time.Duration(s.cfg.IndexResyncSeconds)*time.Second {
		return
	}
	if err := s.resyncIndexes(ctx); err != nil {
		s.log.WithError(err).Warn("geo index resync failed")
	}
}

// resyncIndexes must be called with syncMu held
func (s *CoordinationService) resyncIndexes(ctx context.Context) error {
	signalMark := s.signals.Mark()
	signals, err := s.store.ListOpenSignals(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open signals: %w", err)
	}
	responderMark := s.responders.Mark()
	responders, err := s.store.ListAvailableResponders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load responders: %w", err)
	}

	open := make(map[string]models.Location, len(signals))
	for _, sig := range signals {
		open[sig.ID.String()] = sig.Location
	}
	available := make(map[string]models.Location, len(responders))
	for _, r := range responders {
		if r.Location != nil {
			available[r.ID] = *r.Location
		}
	}

	sigAdded, sigDropped := s.signals.Sync(open, signalMark)
	respAdded, respDropped := s.responders.Sync(available, responderMark)
	s.lastSync = s.now()

	if sigAdded+sigDropped+respAdded+respDropped > 0 {
		s.log.WithFields(logrus.Fields{
			"signals_added":      sigAdded,
			"signals_dropped":    sigDropped,
			"responders_added":   respAdded,
			"responders_dropped": respDropped,
		}).Debug("geo indexes resynced")
	}
	return nil
}

// CreateSignal registers a new SOS and notifies nearby responders
func (s *CoordinationService) CreateSignal(ctx context.Context, in CreateSignalInput) (*models.Signal, error) {
	if strings.TrimSpace(in.ReporterID) == "" {
		return nil, utils.ErrInvalidRequest.WithDetails("reporter id is required")
	}
	if !geo.ValidLocation(in.Location) {
		return nil, utils.ErrInvalidRequest.WithDetails("invalid location")
	}
	if !in.Level.Valid() {
		return nil, utils.ErrInvalidRequest.WithDetails("emergency level must be 1, 2 or 3")
	}
	if utf8.RuneCountInString(in.Message) > maxMessageLength {
		return nil, utils.ErrInvalidRequest.WithDetails("message exceeds %d characters", maxMessageLength)
	}

	now := s.now()
	sig := &models.Signal{
		ID:                  uuid.New(),
		ReporterID:          in.ReporterID,
		ReporterPhone:       in.ReporterPhone,
		ReporterDeviceToken: in.DeviceToken,
		Location:            in.Location,
		Level:               in.Level,
		Message:             strings.TrimSpace(in.Message),
		Priority:            in.Priority,
		Source:              in.Source,
		Status:              models.SignalPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if sig.Priority <= 0 {
		sig.Priority = int(in.Level)
	}
	if sig.Source == "" {
		sig.Source = "app"
	}

	if err := s.store.CreateSignal(ctx, sig); err != nil {
		return nil, fmt.Errorf("failed to create signal: %w", err)
	}
	s.fillStatus(ctx, sig, nil)
	s.signals.Upsert(sig.ID.String(), sig.Location)

	s.log.WithFields(logrus.Fields{
		"signal_id":       sig.ID,
		"emergency_level": sig.Level.String(),
		"source":          sig.Source,
	}).Info("signal created")

	s.publish(ctx, models.Event{
		Type:         models.EventSignalCreated,
		SignalID:     sig.ID,
		SignalStatus: sig.Status,
		Location:     &sig.Location,
		Recipients:   s.nearbyResponderRecipients(ctx, sig),
	})
	return sig, nil
}

// nearbyResponderRecipients finds available responders whose own radius
// covers the signal and who could accept it
func (s *CoordinationService) nearbyResponderRecipients(ctx context.Context, sig *models.Signal) []models.Recipient {
	s.maybeResync(ctx)

	var recipients []models.Recipient
	for _, hit := range s.responders.Nearby(sig.Location, s.cfg.MaxSearchRadiusKm) {
		r, err := s.store.GetResponder(ctx, hit.ID)
		if err != nil || r == nil || !r.Available {
			continue
		}
		if hit.DistanceKm > s.radiusFor(r) || !s.eligibility.CanAccept(r, sig) {
			continue
		}
		recipients = append(recipients, models.Recipient{DeviceToken: r.DeviceToken})
	}
	return recipients
}

// ListNearbySignals returns open signals within the responder's radius,
// annotated with whether the responder can accept each one right now
func (s *CoordinationService) ListNearbySignals(ctx context.Context, responderID string) ([]models.NearbySignal, error) {
	r, err := s.store.GetResponder(ctx, responderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responder: %w", err)
	}
	if r == nil {
		return nil, utils.ErrNotFound.WithDetails("responder %s", responderID)
	}
	if r.Location == nil {
		return nil, utils.ErrInvalidRequest.WithDetails("responder location is unknown")
	}

	nearby, err := s.nearbyOpenSignals(ctx, *r.Location, s.radiusFor(r))
	if err != nil {
		return nil, err
	}
	for i := range nearby {
		nearby[i].CanAccept, nearby[i].Reasons = s.eligibility.Evaluate(r, &nearby[i].Signal)
	}
	return nearby, nil
}

// NearbySignalsAt is the public listing around an arbitrary point
func (s *CoordinationService) NearbySignalsAt(ctx context.Context, center models.Location, radiusKm float64) ([]models.NearbySignal, error) {
	if !geo.ValidLocation(center) {
		return nil, utils.ErrInvalidRequest.WithDetails("invalid location")
	}
	if radiusKm <= 0 {
		radiusKm = s.cfg.DefaultSearchRadiusKm
	}
	if radiusKm > s.cfg.MaxSearchRadiusKm {
		radiusKm = s.cfg.MaxSearchRadiusKm
	}
	return s.nearbyOpenSignals(ctx, center, radiusKm)
}

func (s *CoordinationService) nearbyOpenSignals(ctx context.Context, center models.Location, radiusKm float64) ([]models.NearbySignal, error) {
	s.maybeResync(ctx)

	hits := s.signals.Nearby(center, radiusKm)
	if len(hits) == 0 {
		return []models.NearbySignal{}, nil
	}

	distances := make(map[uuid.UUID]float64, len(hits))
	ids := make([]uuid.UUID, 0, len(hits))
	for _, hit := range hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		distances[id] = hit.DistanceKm
		ids = append(ids, id)
	}

	signals, err := s.store.GetSignals(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load nearby signals: %w", err)
	}

	out := make([]models.NearbySignal, 0, len(signals))
	for _, sig := range signals {
		if !sig.Status.Open() {
			continue
		}
		out = append(out, models.NearbySignal{Signal: sig, DistanceKm: distances[sig.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Signal.Priority != out[j].Signal.Priority {
			return out[i].Signal.Priority > out[j].Signal.Priority
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out, nil
}

// AcceptSignal assigns the responder to the signal if they win the race
func (s *CoordinationService) AcceptSignal(ctx context.Context, responderID string, signalID uuid.UUID) (*models.Response, error) {
	resp, err := s.ledger.TryAccept(ctx, signalID, responderID, func(sig *models.Signal, resp *models.Response) {
		s.cacheStatus(ctx, sig, resp)
		s.publish(ctx, models.Event{
			Type:         models.EventSignalAccepted,
			SignalID:     sig.ID,
			ResponseID:   &resp.ID,
			ResponderID:  resp.ResponderID,
			SignalStatus: sig.Status,
			Status:       resp.Status,
			Recipients:   []models.Recipient{reporterRecipient(sig)},
		})
	})

	entry := s.log.WithFields(logrus.Fields{"signal_id": signalID, "responder_id": responderID})
	if err != nil {
		if errors.Is(err, utils.ErrAlreadyAssigned) || errors.Is(err, utils.ErrNotEligible) {
			entry.WithError(err).Info("accept rejected")
		}
		return nil, err
	}
	entry.WithField("response_id", resp.ID).Info("signal accepted")

	s.bumpStat(ctx, responderID, models.StatAccepted)
	return resp, nil
}

// UpdateResponseStatus records a responder status report and moves the
// signal along with it
func (s *CoordinationService) UpdateResponseStatus(
	ctx context.Context,
	responseID uuid.UUID,
	actorID string,
	status models.ResponseState,
	loc *models.Location,
) (*models.Response, error) {
	if loc != nil && !geo.ValidLocation(*loc) {
		return nil, utils.ErrInvalidRequest.WithDetails("invalid location")
	}
	signalID, err := s.signalOf(ctx, responseID)
	if err != nil {
		return nil, err
	}

	var updated *models.Response
	err = s.ledger.WithSignal(signalID, func() error {
		sig, resp, err := s.loadPair(ctx, signalID, responseID)
		if err != nil {
			return err
		}
		if resp.ResponderID != actorID {
			return utils.ErrForbidden.WithDetails("only the assigned responder can update this response")
		}

		now := s.now()
		tr, err := lifecycle.TransitionResponse(resp, status, loc, now)
		if err != nil {
			return err
		}
		if !tr.Changed && loc == nil {
			updated = resp
			return nil
		}

		entry := s.log.WithFields(logrus.Fields{
			"signal_id":   sig.ID,
			"response_id": resp.ID,
			"from":        tr.From,
			"to":          tr.To,
		})
		if tr.Skipped {
			entry.Warn("response status skipped intermediate states")
		}

		if loc != nil {
			d := geo.HaversineKm(*loc, sig.Location)
			resp.DistanceKm = &d
		}

		var sigChanged bool
		if tr.Changed {
			target := lifecycle.SignalStateFor(resp.Status)
			sigChanged, err = lifecycle.AdvanceSignal(sig, target, now)
			if err != nil {
				return err
			}
		}

		var sigToSave *models.Signal
		if sigChanged {
			sigToSave = sig
		}
		if err := s.store.SaveTransition(ctx, sigToSave, resp); err != nil {
			return fmt.Errorf("failed to save status update: %w", err)
		}
		if loc != nil {
			if _, err := s.trackResponder(ctx, resp.ResponderID, *loc, now); err != nil {
				entry.WithError(err).Warn("could not record responder location")
			}
		}

		if tr.Changed {
			entry.Info("response status changed")
			s.publish(ctx, models.Event{
				Type:         models.EventResponseStatusChanged,
				SignalID:     sig.ID,
				ResponseID:   &resp.ID,
				ResponderID:  resp.ResponderID,
				SignalStatus: sig.Status,
				Status:       resp.Status,
				Location:     loc,
				Recipients:   []models.Recipient{reporterRecipient(sig)},
			})
			if resp.Status == models.ResponseCancelled {
				entry.Info("responder withdrew; signal reopened")
				s.bumpStat(ctx, resp.ResponderID, models.StatCancelled)
			}
		}
		s.cacheStatus(ctx, sig, resp)
		updated = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkVictimSafe closes the signal as a false alarm and cancels any active
// response. Rejected once the responder has arrived.
func (s *CoordinationService) MarkVictimSafe(ctx context.Context, signalID uuid.UUID, actorID string, loc *models.Location) (*models.Signal, error) {
	if loc != nil && !geo.ValidLocation(*loc) {
		return nil, utils.ErrInvalidRequest.WithDetails("invalid location")
	}

	var closed *models.Signal
	err := s.ledger.WithSignal(signalID, func() error {
		sig, err := s.store.GetSignal(ctx, signalID)
		if err != nil {
			return fmt.Errorf("failed to load signal: %w", err)
		}
		if sig == nil {
			return utils.ErrNotFound.WithDetails("signal %s", signalID)
		}
		if sig.ReporterID != actorID {
			return utils.ErrForbidden.WithDetails("only the reporter can mark themselves safe")
		}
		if sig.Status.Terminal() {
			return utils.ErrSignalAlreadyClosed.WithDetails("signal %s is %s", sig.ID, sig.Status)
		}

		active, err := s.store.GetActiveResponse(ctx, signalID)
		if err != nil {
			return fmt.Errorf("failed to load active response: %w", err)
		}
		if !lifecycle.CancellationWindowOpen(active) {
			return utils.ErrCancellationWindowClosed
		}

		now := s.now()
		if active != nil {
			if _, err := lifecycle.TransitionResponse(active, models.ResponseCancelled, nil, now); err != nil {
				return err
			}
			active.StatusHistory[len(active.StatusHistory)-1].Note = "victim marked safe"
		}
		if _, err := lifecycle.AdvanceSignal(sig, models.SignalFalseAlarm, now); err != nil {
			return err
		}
		if err := s.store.SaveTransition(ctx, sig, active); err != nil {
			return fmt.Errorf("failed to save cancellation: %w", err)
		}
		s.signals.Remove(sig.ID.String())

		s.log.WithFields(logrus.Fields{
			"signal_id":          sig.ID,
			"cancelled_response": active != nil,
		}).Info("victim marked safe")

		evt := models.Event{
			Type:         models.EventSignalCancelled,
			SignalID:     sig.ID,
			SignalStatus: sig.Status,
			Location:     loc,
		}
		if active != nil {
			evt.ResponseID = &active.ID
			evt.ResponderID = active.ResponderID
			evt.Status = active.Status
			evt.Recipients = s.responderRecipients(ctx, active.ResponderID)
		}
		s.cacheStatus(ctx, sig, active)
		s.publish(ctx, evt)
		closed = sig
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// CompleteRescue closes the response with a completion record and resolves
// the signal. A missing-person payload is forwarded as its own event.
func (s *CoordinationService) CompleteRescue(
	ctx context.Context,
	responseID uuid.UUID,
	actorID string,
	record models.CompletionRecord,
) (*models.Response, error) {
	if err := lifecycle.ValidateCompletion(record); err != nil {
		return nil, err
	}
	signalID, err := s.signalOf(ctx, responseID)
	if err != nil {
		return nil, err
	}

	var completed *models.Response
	err = s.ledger.WithSignal(signalID, func() error {
		sig, resp, err := s.loadPair(ctx, signalID, responseID)
		if err != nil {
			return err
		}
		if resp.ResponderID != actorID {
			return utils.ErrForbidden.WithDetails("only the assigned responder can complete this rescue")
		}

		now := s.now()
		tr, err := lifecycle.Complete(resp, record, now)
		if err != nil {
			return err
		}
		if _, err := lifecycle.AdvanceSignal(sig, models.SignalResolved, now); err != nil {
			return err
		}
		if err := s.store.SaveTransition(ctx, sig, resp); err != nil {
			return fmt.Errorf("failed to save completion: %w", err)
		}
		s.signals.Remove(sig.ID.String())

		entry := s.log.WithFields(logrus.Fields{
			"signal_id":   sig.ID,
			"response_id": resp.ID,
			"outcome":     record.Outcome,
		})
		if tr.Skipped {
			entry.WithField("from", tr.From).Warn("rescue completed without reaching assisting")
		}
		entry.Info("rescue completed")

		s.cacheStatus(ctx, sig, resp)
		s.publish(ctx, models.Event{
			Type:         models.EventSignalResolved,
			SignalID:     sig.ID,
			ResponseID:   &resp.ID,
			ResponderID:  resp.ResponderID,
			SignalStatus: sig.Status,
			Status:       resp.Status,
			Recipients:   []models.Recipient{reporterRecipient(sig)},
		})
		if record.CreateMissingPersonEntry {
			s.publish(ctx, models.Event{
				Type:          models.EventMissingPersonReported,
				SignalID:      sig.ID,
				ResponseID:    &resp.ID,
				ResponderID:   resp.ResponderID,
				MissingPerson: resp.Completion.MissingPerson,
			})
		}
		completed = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpStat(ctx, actorID, models.StatCompleted)
	return completed, nil
}

// PostChatMessage appends a message to a live response's chat log
func (s *CoordinationService) PostChatMessage(ctx context.Context, responseID uuid.UUID, senderID, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.ErrInvalidRequest.WithDetails("message text is required")
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		return nil, utils.ErrInvalidRequest.WithDetails("message exceeds %d characters", maxChatLength)
	}
	signalID, err := s.signalOf(ctx, responseID)
	if err != nil {
		return nil, err
	}

	var posted *models.ChatMessage
	err = s.ledger.WithSignal(signalID, func() error {
		sig, resp, err := s.loadPair(ctx, signalID, responseID)
		if err != nil {
			return err
		}
		if resp.Status.Terminal() {
			return utils.ErrResponseClosed.WithDetails("chat is closed for response %s", resp.ID)
		}

		role, recipients, err := s.chatParty(ctx, sig, resp, senderID)
		if err != nil {
			return err
		}

		msg := models.ChatMessage{
			ID:       uuid.New(),
			SenderID: senderID,
			Role:     role,
			Text:     text,
			SentAt:   s.now(),
		}
		resp.Messages = append(resp.Messages, msg)
		resp.UpdatedAt = msg.SentAt
		if err := s.store.SaveTransition(ctx, nil, resp); err != nil {
			return fmt.Errorf("failed to save chat message: %w", err)
		}

		s.publish(ctx, models.Event{
			Type:        models.EventChatMessagePosted,
			SignalID:    sig.ID,
			ResponseID:  &resp.ID,
			ResponderID: resp.ResponderID,
			Chat:        &msg,
			Recipients:  recipients,
		})
		posted = &msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// ListChat returns a response's chat log to one of its two participants
func (s *CoordinationService) ListChat(ctx context.Context, responseID uuid.UUID, actorID string) ([]models.ChatMessage, error) {
	resp, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load response: %w", err)
	}
	if resp == nil {
		return nil, utils.ErrNotFound.WithDetails("response %s", responseID)
	}
	if actorID != resp.ResponderID {
		sig, err := s.store.GetSignal(ctx, resp.SignalID)
		if err != nil {
			return nil, fmt.Errorf("failed to load signal: %w", err)
		}
		if sig == nil || sig.ReporterID != actorID {
			return nil, utils.ErrForbidden.WithDetails("not a participant of this response")
		}
	}
	if resp.Messages == nil {
		return []models.ChatMessage{}, nil
	}
	return resp.Messages, nil
}

// GetSignalStatus returns the polling snapshot, from cache when possible
func (s *CoordinationService) GetSignalStatus(ctx context.Context, signalID uuid.UUID) (*models.SignalStatus, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSignalStatus(ctx, signalID)
		if err != nil {
			s.log.WithError(err).WithField("signal_id", signalID).Warn("status cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal: %w", err)
	}
	if sig == nil {
		return nil, utils.ErrNotFound.WithDetails("signal %s", signalID)
	}
	resp, err := s.store.GetLatestResponse(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load response: %w", err)
	}

	return s.fillStatus(ctx, sig, resp), nil
}

func (s *CoordinationService) signalOf(ctx context.Context, responseID uuid.UUID) (uuid.UUID, error) {
	resp, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load response: %w", err)
	}
	if resp == nil {
		return uuid.Nil, utils.ErrNotFound.WithDetails("response %s", responseID)
	}
	return resp.SignalID, nil
}

// loadPair re-reads a response and its signal inside the signal's lock
func (s *CoordinationService) loadPair(ctx context.Context, signalID, responseID uuid.UUID) (*models.Signal, *models.Response, error) {
	resp, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load response: %w", err)
	}
	if resp == nil {
		return nil, nil, utils.ErrNotFound.WithDetails("response %s", responseID)
	}
	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load signal: %w", err)
	}
	if sig == nil {
		return nil, nil, utils.ErrNotFound.WithDetails("signal %s", signalID)
	}
	return sig, resp, nil
}

func (s *CoordinationService) chatParty(ctx context.Context, sig *models.Signal, resp *models.Response, senderID string) (models.SenderRole, []models.Recipient, error) {
	switch senderID {
	case resp.ResponderID:
		return models.SenderResponder, []models.Recipient{reporterRecipient(sig)}, nil
	case sig.ReporterID:
		return models.SenderVictim, s.responderRecipients(ctx, resp.ResponderID), nil
	}
	return "", nil, utils.ErrForbidden.WithDetails("not a participant of this response")
}

func (s *CoordinationService) responderRecipients(ctx context.Context, responderID string) []models.Recipient {
	r, err := s.store.GetResponder(ctx, responderID)
	if err != nil || r == nil {
		return nil
	}
	return []models.Recipient{{DeviceToken: r.DeviceToken, Phone: r.Phone}}
}

func reporterRecipient(sig *models.Signal) models.Recipient {
	return models.Recipient{DeviceToken: sig.ReporterDeviceToken, Phone: sig.ReporterPhone}
}

func (s *CoordinationService) radiusFor(r *models.ResponderProfile) float64 {
	if r.AvailabilityRadiusKm <= 0 {
		return s.cfg.DefaultSearchRadiusKm
	}
	if r.AvailabilityRadiusKm > s.cfg.MaxSearchRadiusKm {
		return s.cfg.MaxSearchRadiusKm
	}
	return r.AvailabilityRadiusKm
}

// cacheStatus overwrites the cached snapshot. Only call it after committing
// a change, while still holding the signal's lock.
func (s *CoordinationService) cacheStatus(ctx context.Context, sig *models.Signal, resp *models.Response) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSignalStatus(ctx, statusSnapshot(sig, resp), s.statusTTL()); err != nil {
		s.log.WithError(err).WithField("signal_id", sig.ID).Warn("status cache write failed")
	}
}

// fillStatus caches a snapshot read outside the signal's lock. It only lands
// if nothing is cached yet, so it cannot mask a newer committed state.
func (s *CoordinationService) fillStatus(ctx context.Context, sig *models.Signal, resp *models.Response) *models.SignalStatus {
	status := statusSnapshot(sig, resp)
	if s.cache == nil {
		return status
	}
	if _, err := s.cache.FillSignalStatus(ctx, status, s.statusTTL()); err != nil {
		s.log.WithError(err).WithField("signal_id", sig.ID).Warn("status cache fill failed")
	}
	return status
}

func (s *CoordinationService) statusTTL() time.Duration {
	return time.Duration(s.cfg.StatusCacheTTLSeconds) * time.Second
}

func statusSnapshot(sig *models.Signal, resp *models.Response) *models.SignalStatus {
	status := &models.SignalStatus{
		SignalID:  sig.ID,
		Status:    sig.Status,
		Level:     sig.Level,
		UpdatedAt: sig.UpdatedAt,
	}
	if resp != nil {
		id := resp.ID
		status.ResponseID = &id
		status.ResponderID = resp.ResponderID
		status.ResponseStatus = resp.Status
		status.DistanceKm = resp.DistanceKm
		if resp.UpdatedAt.After(status.UpdatedAt) {
			status.UpdatedAt = resp.UpdatedAt
		}
	}
	return status
}

func (s *CoordinationService) publish(ctx context.Context, evt models.Event) {
	evt.ID = uuid.New()
	evt.OccurredAt = s.now()
	for _, p := range s.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"event":     evt.Type,
				"signal_id": evt.SignalID,
			}).Error("failed to publish event")
		}
	}
}

func (s *CoordinationService) bumpStat(ctx context.Context, responderID string, stat models.ResponderStat) {
	if err := s.store.IncrementResponderStat(ctx, responderID, stat, s.now()); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"responder_id": responderID,
			"stat":         stat,
		}).Warn("could not update responder stats")
	}
}
