package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/geo"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

// ResponderInput is the self-service part of a responder profile
type ResponderInput struct {
	Name                 string
	Phone                string
	DeviceToken          string
	AvailabilityRadiusKm float64
}

// UpsertResponder creates or updates a responder's own profile. New
// profiles start unverified and unavailable with only level 1 allowed.
func (s *CoordinationService) UpsertResponder(ctx context.Context, responderID string, in ResponderInput) (*models.ResponderProfile, error) {
	if strings.TrimSpace(responderID) == "" {
		return nil, utils.ErrInvalidRequest.WithDetails("responder id is required")
	}
	if in.AvailabilityRadiusKm < 0 || in.AvailabilityRadiusKm > s.cfg.MaxSearchRadiusKm {
		return nil, utils.ErrInvalidRequest.WithDetails("radius must be between 0 and %.0f km", s.cfg.MaxSearchRadiusKm)
	}

	r, err := s.store.GetResponder(ctx, responderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responder: %w", err)
	}

	now := s.now()
	if r == nil {
		r = &models.ResponderProfile{
			ID:                 responderID,
			VerificationStatus: models.VerificationPending,
			AllowedLevels:      AllowedLevels(nil),
			CreatedAt:          now,
		}
		s.log.WithField("responder_id", responderID).Info("responder registered")
	}
	r.Name = strings.TrimSpace(in.Name)
	r.Phone = in.Phone
	if in.DeviceToken != "" {
		r.DeviceToken = in.DeviceToken
	}
	r.AvailabilityRadiusKm = in.AvailabilityRadiusKm
	r.UpdatedAt = now

	if err := s.store.SaveResponder(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save responder: %w", err)
	}
	return r, nil
}

// SetAvailability toggles whether the responder receives and may accept signals
func (s *CoordinationService) SetAvailability(ctx context.Context, responderID string, available bool) (*models.ResponderProfile, error) {
	if err := s.store.SetResponderAvailability(ctx, responderID, available, s.now()); err != nil {
		return nil, fmt.Errorf("failed to save availability: %w", err)
	}
	r, err := s.mustResponder(ctx, responderID)
	if err != nil {
		return nil, err
	}

	if r.Available && r.Location != nil {
		s.responders.Upsert(r.ID, *r.Location)
	} else if !r.Available {
		s.responders.Remove(r.ID)
	}

	s.log.WithFields(logrus.Fields{
		"responder_id": r.ID,
		"available":    available,
	}).Info("responder availability changed")
	return r, nil
}

// UpdateResponderLocation records where the responder is now
func (s *CoordinationService) UpdateResponderLocation(ctx context.Context, responderID string, loc models.Location) (*models.ResponderProfile, error) {
	if !geo.ValidLocation(loc) {
		return nil, utils.ErrInvalidRequest.WithDetails("invalid location")
	}
	return s.trackResponder(ctx, responderID, loc, s.now())
}

// trackResponder saves a position report and indexes it only while the
// responder is available
func (s *CoordinationService) trackResponder(ctx context.Context, responderID string, loc models.Location, at time.Time) (*models.ResponderProfile, error) {
	if err := s.store.SetResponderLocation(ctx, responderID, loc, at); err != nil {
		return nil, fmt.Errorf("failed to save location: %w", err)
	}
	r, err := s.mustResponder(ctx, responderID)
	if err != nil {
		return nil, err
	}
	if r.Available {
		s.responders.Upsert(r.ID, loc)
	}
	return r, nil
}

// ApplyCertifications is called by the verification authority. Allowed
// levels are always recomputed from the certification set.
func (s *CoordinationService) ApplyCertifications(
	ctx context.Context,
	responderID string,
	certs models.Certifications,
	status models.VerificationStatus,
) (*models.ResponderProfile, error) {
	if status != models.VerificationPending && status != models.VerificationVerified {
		return nil, utils.ErrInvalidRequest.WithDetails("unknown verification status %q", status)
	}
	r, err := s.mustResponder(ctx, responderID)
	if err != nil {
		return nil, err
	}

	r.Certifications = certs
	r.VerificationStatus = status
	r.AllowedLevels = AllowedLevels(certs)
	r.UpdatedAt = s.now()
	if err := s.store.SaveResponder(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save responder: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"responder_id":   r.ID,
		"verification":   status,
		"allowed_levels": r.AllowedLevels,
	}).Info("responder certifications applied")
	return r, nil
}

// GetResponder returns a responder profile or utils.ErrNotFound
func (s *CoordinationService) GetResponder(ctx context.Context, responderID string) (*models.ResponderProfile, error) {
	return s.mustResponder(ctx, responderID)
}

func (s *CoordinationService) mustResponder(ctx context.Context, responderID string) (*models.ResponderProfile, error) {
	r, err := s.store.GetResponder(ctx, responderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responder: %w", err)
	}
	if r == nil {
		return nil, utils.ErrNotFound.WithDetails("responder %s", responderID)
	}
	return r, nil
}
