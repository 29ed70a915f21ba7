package services

import (
	"sort"
	"strings"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

const (
	ReasonUnverified            = "unverified"
	ReasonUnavailable           = "unavailable"
	ReasonCertificationRequired = "certification_required"
)

// Certification classes recognised by the verification authority
var (
	medicalCertifications = map[string]bool{
		"first_aid": true,
		"paramedic": true,
		"nurse":     true,
		"doctor":    true,
		"emt":       true,
	}
	rescueCertifications = map[string]bool{
		"search_and_rescue": true,
		"firefighter":       true,
		"heavy_vehicle":     true,
		"boat_operator":     true,
		"lifeguard":         true,
	}
)

// AllowedLevels derives the emergency levels a set of certifications unlocks.
// Level 1 is always allowed. A verified rescue-class certification unlocks
// every level, so the result is always downward closed.
func AllowedLevels(certs models.Certifications) models.LevelSet {
	var medical, rescue bool
	for _, c := range certs {
		if !c.Verified {
			continue
		}
		kind := strings.ToLower(strings.TrimSpace(c.Type))
		medical = medical || medicalCertifications[kind]
		rescue = rescue || rescueCertifications[kind]
	}

	levels := models.LevelSet{models.LevelFoodWater}
	if medical || rescue {
		levels = append(levels, models.LevelMedical)
	}
	if rescue {
		levels = append(levels, models.LevelLifeThreatening)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels
}

// EligibilityEvaluator decides whether a responder may take a signal.
// It holds no state and must be called at accept time, never cached.
type EligibilityEvaluator struct{}

func NewEligibilityEvaluator() *EligibilityEvaluator {
	return &EligibilityEvaluator{}
}

// Evaluate returns whether the responder can accept, and if not, why
func (e *EligibilityEvaluator) Evaluate(r *models.ResponderProfile, s *models.Signal) (bool, []string) {
	var reasons []string
	if r.VerificationStatus != models.VerificationVerified {
		reasons = append(reasons, ReasonUnverified)
	}
	if !r.Available {
		reasons = append(reasons, ReasonUnavailable)
	}
	if !r.AllowedLevels.Contains(s.Level) {
		reasons = append(reasons, ReasonCertificationRequired)
	}
	return len(reasons) == 0, reasons
}

func (e *EligibilityEvaluator) CanAccept(r *models.ResponderProfile, s *models.Signal) bool {
	ok, _ := e.Evaluate(r, s)
	return ok
}
