package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Location is a WGS84 point
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// EmergencyLevel classifies what kind of help a signal needs
type EmergencyLevel int

const (
	LevelFoodWater       EmergencyLevel = 1
	LevelMedical         EmergencyLevel = 2
	LevelLifeThreatening EmergencyLevel = 3
)

func (l EmergencyLevel) Valid() bool {
	return l >= LevelFoodWater && l <= LevelLifeThreatening
}

func (l EmergencyLevel) String() string {
	switch l {
	case LevelFoodWater:
		return "food_water"
	case LevelMedical:
		return "medical"
	case LevelLifeThreatening:
		return "life_threatening"
	}
	return "unknown"
}

// Signal represents an emergency SOS call raised by a victim
type Signal struct {
	ID                  uuid.UUID      `json:"id" db:"id"`
	ReporterID          string         `json:"reporter_id" db:"reporter_id"`
	ReporterPhone       string         `json:"reporter_phone,omitempty" db:"reporter_phone"`
	ReporterDeviceToken string         `json:"-" db:"reporter_device_token"`
	Location            Location       `json:"location" db:"location"`
	Level               EmergencyLevel `json:"level" db:"level"`
	Message             string         `json:"message" db:"message"`
	Priority            int            `json:"priority" db:"priority"`
	Source              string         `json:"source" db:"source"` // "app" | "sms"
	Status              SignalState    `json:"status" db:"status"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
	ClosedAt            *time.Time     `json:"closed_at,omitempty" db:"closed_at"`
	Version             int            `json:"version" db:"version"`
}

// ResponderProfile is a civilian responder that can pick up signals
type ResponderProfile struct {
	ID                   string             `json:"id" db:"id"`
	Name                 string             `json:"name" db:"name"`
	Phone                string             `json:"phone,omitempty" db:"phone"`
	DeviceToken          string             `json:"-" db:"device_token"`
	Available            bool               `json:"available" db:"available"`
	Location             *Location          `json:"location,omitempty" db:"location"`
	LocationUpdatedAt    *time.Time         `json:"location_updated_at,omitempty" db:"location_updated_at"`
	AvailabilityRadiusKm float64            `json:"availability_radius_km" db:"availability_radius_km"`
	VerificationStatus   VerificationStatus `json:"verification_status" db:"verification_status"`
	Certifications       Certifications     `json:"certifications" db:"certifications"`
	AllowedLevels        LevelSet           `json:"allowed_levels" db:"allowed_levels"`
	Stats                ResponderStats     `json:"stats" db:"stats"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

// Certification is a credential approved (or not yet) by the verification authority
type Certification struct {
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
}

// Certifications is stored as JSONB
type Certifications []Certification

func (c Certifications) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *Certifications) Scan(value interface{}) error {
	if value == nil {
		*c = Certifications{}
		return nil
	}
	return scanJSON(value, c)
}

// LevelSet is the set of emergency levels a responder may accept, stored as JSONB
type LevelSet []EmergencyLevel

func (s LevelSet) Contains(level EmergencyLevel) bool {
	for _, l := range s {
		if l == level {
			return true
		}
	}
	return false
}

func (s LevelSet) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *LevelSet) Scan(value interface{}) error {
	if value == nil {
		*s = LevelSet{}
		return nil
	}
	return scanJSON(value, s)
}

// ResponderStats tracks a responder's history
type ResponderStats struct {
	Rating    float64 `json:"rating"`
	Accepted  int     `json:"accepted"`
	Completed int     `json:"completed"`
	Cancelled int     `json:"cancelled"`
}

// ResponderStat names a single counter in ResponderStats
type ResponderStat string

const (
	StatAccepted  ResponderStat = "accepted"
	StatCompleted ResponderStat = "completed"
	StatCancelled ResponderStat = "cancelled"
)

func (s ResponderStat) Valid() bool {
	switch s {
	case StatAccepted, StatCompleted, StatCancelled:
		return true
	}
	return false
}

// Increment bumps the named counter; unknown names are ignored
func (s *ResponderStats) Increment(stat ResponderStat) {
	switch stat {
	case StatAccepted:
		s.Accepted++
	case StatCompleted:
		s.Completed++
	case StatCancelled:
		s.Cancelled++
	}
}

func (s ResponderStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ResponderStats) Scan(value interface{}) error {
	if value == nil {
		*s = ResponderStats{}
		return nil
	}
	return scanJSON(value, s)
}

// Response is one responder's engagement with one signal
type Response struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	SignalID      uuid.UUID         `json:"signal_id" db:"signal_id"`
	ResponderID   string            `json:"responder_id" db:"responder_id"`
	Status        ResponseState     `json:"status" db:"status"`
	StatusHistory StatusHistory     `json:"status_history" db:"status_history"`
	DistanceKm    *float64          `json:"distance_km,omitempty" db:"distance_km"`
	Messages      ChatLog           `json:"messages" db:"messages"`
	Completion    *CompletionRecord `json:"completion,omitempty" db:"completion"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
	Version       int               `json:"version" db:"version"`
}

// StatusEntry records a single response status report
type StatusEntry struct {
	Status   ResponseState `json:"status"`
	At       time.Time     `json:"at"`
	Location *Location     `json:"location,omitempty"`
	Note     string        `json:"note,omitempty"`
}

type StatusHistory []StatusEntry

func (h StatusHistory) Value() (driver.Value, error) {
	return json.Marshal(h)
}

func (h *StatusHistory) Scan(value interface{}) error {
	if value == nil {
		*h = StatusHistory{}
		return nil
	}
	return scanJSON(value, h)
}

type SenderRole string

const (
	SenderResponder SenderRole = "responder"
	SenderVictim    SenderRole = "victim"
)

// ChatMessage is a message exchanged between victim and responder
type ChatMessage struct {
	ID       uuid.UUID  `json:"id"`
	SenderID string     `json:"sender_id"`
	Role     SenderRole `json:"role"`
	Text     string     `json:"text"`
	SentAt   time.Time  `json:"sent_at"`
}

type ChatLog []ChatMessage

func (c ChatLog) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ChatLog) Scan(value interface{}) error {
	if value == nil {
		*c = ChatLog{}
		return nil
	}
	return scanJSON(value, c)
}

// CompletionRecord is attached to a completed response
type CompletionRecord struct {
	Outcome                  RescueOutcome       `json:"outcome"`
	VictimStatus             VictimStatus        `json:"victim_status"`
	ReliefCamp               *ReliefCampRef      `json:"relief_camp,omitempty"`
	CreateMissingPersonEntry bool                `json:"create_missing_person_entry"`
	MissingPerson            *MissingPersonEntry `json:"missing_person,omitempty"`
	Notes                    string              `json:"notes,omitempty"`
	CompletedAt              time.Time           `json:"completed_at"`
}

func (r CompletionRecord) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *CompletionRecord) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	return scanJSON(value, r)
}

type ReliefCampRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MissingPersonEntry is passed through to the external missing-persons registry
type MissingPersonEntry struct {
	Name            string    `json:"name"`
	Age             int       `json:"age,omitempty"`
	Gender          string    `json:"gender,omitempty"`
	Description     string    `json:"description,omitempty"`
	LastSeen        *Location `json:"last_seen,omitempty"`
	ReporterContact string    `json:"reporter_contact,omitempty"`
}

type RescueOutcome string

const (
	OutcomeRescuedSafe          RescueOutcome = "rescued_safe"
	OutcomeRescuedInjured       RescueOutcome = "rescued_injured"
	OutcomeTransferredToMedical RescueOutcome = "transferred_to_medical"
	OutcomeRelocatedToCamp      RescueOutcome = "relocated_to_camp"
	OutcomeDeceased             RescueOutcome = "deceased"
	OutcomeNotFound             RescueOutcome = "not_found"
)

func (o RescueOutcome) Valid() bool {
	switch o {
	case OutcomeRescuedSafe, OutcomeRescuedInjured, OutcomeTransferredToMedical,
		OutcomeRelocatedToCamp, OutcomeDeceased, OutcomeNotFound:
		return true
	}
	return false
}

type VictimStatus string

const (
	VictimSafe     VictimStatus = "safe"
	VictimInjured  VictimStatus = "injured"
	VictimCritical VictimStatus = "critical"
	VictimDeceased VictimStatus = "deceased"
	VictimMissing  VictimStatus = "missing"
)

func (v VictimStatus) Valid() bool {
	switch v {
	case VictimSafe, VictimInjured, VictimCritical, VictimDeceased, VictimMissing:
		return true
	}
	return false
}

// SignalStatus is the polling snapshot returned to victim devices (cached in Redis)
type SignalStatus struct {
	SignalID       uuid.UUID      `json:"signal_id"`
	Status         SignalState    `json:"status"`
	Level          EmergencyLevel `json:"level"`
	ResponseID     *uuid.UUID     `json:"response_id,omitempty"`
	ResponderID    string         `json:"responder_id,omitempty"`
	ResponseStatus ResponseState  `json:"response_status,omitempty"`
	DistanceKm     *float64       `json:"distance_km,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NearbySignal is a signal annotated for a particular responder
type NearbySignal struct {
	Signal     Signal   `json:"signal"`
	DistanceKm float64  `json:"distance_km"`
	CanAccept  bool     `json:"can_accept"`
	Reasons    []string `json:"reasons,omitempty"`
}

// scanJSON decodes a JSONB column, which drivers hand over as []byte or string
func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return nil
}
