package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

const smsPrefix = "sos"

// SOSMessage is an SOS raised over SMS by a device without data
type SOSMessage struct {
	ReporterID string
	Timestamp  time.Time
	Location   models.Location
	Level      models.EmergencyLevel
	Message    string
	Signature  string
	// Signed is the part of the body the signature covers
	Signed string
}

// SMSParser handles parsing of compressed SMS SOS payloads
type SMSParser struct{}

func NewSMSParser() *SMSParser {
	return &SMSParser{}
}

// ParseSOSSMS parses compressed SMS format:
// sos;uid=resp-42;ts=2025-11-19T12:50:00Z;lat=6.5244;lng=3.3792;lvl=3;msg=trapped;sig=abc123
func (sp *SMSParser) ParseSOSSMS(smsBody string) (*SOSMessage, error) {
	body := strings.TrimSpace(smsBody)
	parts := strings.Split(body, ";")
	if len(parts) < 6 || !strings.EqualFold(strings.TrimSpace(parts[0]), smsPrefix) {
		return nil, fmt.Errorf("invalid SMS format: insufficient fields")
	}

	idx := strings.LastIndex(body, ";sig=")
	if idx < 0 {
		return nil, fmt.Errorf("missing signature")
	}
	msg := &SOSMessage{Signed: body[:idx]}

	var haveLat, haveLng bool
	for _, part := range parts[1:] {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}

		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])

		switch key {
		case "uid":
			msg.ReporterID = value

		case "ts":
			timestamp, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp: %w", err)
			}
			msg.Timestamp = timestamp

		case "lat":
			lat, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid latitude: %w", err)
			}
			msg.Location.Lat = lat
			haveLat = true

		case "lng":
			lng, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid longitude: %w", err)
			}
			msg.Location.Lng = lng
			haveLng = true

		case "lvl":
			lvl, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid level: %w", err)
			}
			msg.Level = models.EmergencyLevel(lvl)

		case "msg":
			msg.Message = value

		case "sig":
			msg.Signature = value
		}
	}

	// Validate required fields
	if msg.ReporterID == "" {
		return nil, fmt.Errorf("missing user ID")
	}
	if msg.Timestamp.IsZero() {
		return nil, fmt.Errorf("missing timestamp")
	}
	if !haveLat || !haveLng {
		return nil, fmt.Errorf("missing location")
	}
	if !msg.Level.Valid() {
		return nil, fmt.Errorf("invalid level: %d", msg.Level)
	}
	if msg.Signature == "" {
		return nil, fmt.Errorf("missing signature")
	}

	return msg, nil
}

// BuildSOSPayload creates the unsigned SMS payload (for mobile client reference).
// Append ";sig=" plus utils.SignSOS of the result to send it.
func (sp *SMSParser) BuildSOSPayload(reporterID string, ts time.Time, loc models.Location, level models.EmergencyLevel, message string) string {
	parts := []string{
		smsPrefix,
		fmt.Sprintf("uid=%s", reporterID),
		fmt.Sprintf("ts=%s", ts.UTC().Format(time.RFC3339)),
		fmt.Sprintf("lat=%.6f", loc.Lat),
		fmt.Sprintf("lng=%.6f", loc.Lng),
		fmt.Sprintf("lvl=%d", level),
	}

	if message != "" {
		parts = append(parts, fmt.Sprintf("msg=%s", strings.ReplaceAll(message, ";", ",")))
	}

	return strings.Join(parts, ";")
}
