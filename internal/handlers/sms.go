package handlers

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/config"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/services"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

type SMSHandler struct {
	cfg       *config.Config
	service   *services.CoordinationService
	smsParser *services.SMSParser
	replays   RateLimiter
	log       *logrus.Entry
	now       func() time.Time
}

// NewSMSHandler builds the Twilio webhook. replays, when set, remembers
// signatures for the freshness window so a resent SMS raises one signal.
func NewSMSHandler(cfg *config.Config, service *services.CoordinationService, replays RateLimiter) *SMSHandler {
	return &SMSHandler{
		cfg:       cfg,
		service:   service,
		smsParser: services.NewSMSParser(),
		replays:   replays,
		log:       logrus.WithField("component", "sms_webhook"),
		now:       time.Now,
	}
}

// POST /v1/sms/webhook
// Twilio sends SMS data as form-encoded. Every outcome is answered with 200
// and TwiML so Twilio does not retry.
func (h *SMSHandler) HandleIncomingSMS(c *gin.Context) {
	// Twilio sends data as form parameters
	body := c.PostForm("Body")
	from := c.PostForm("From")

	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message body"})
		return
	}

	// Parse SMS SOS
	msg, err := h.smsParser.ParseSOSSMS(body)
	if err != nil {
		h.log.WithError(err).WithField("from", from).Warn("could not parse SMS SOS")
		twiml(c, "Message received but could not be parsed")
		return
	}

	// Verify signature
	if !utils.VerifySOS(msg.Signed, msg.Signature, h.cfg.HMACSecret) {
		h.log.WithField("from", from).Warn("SMS SOS signature mismatch")
		twiml(c, "Invalid signature")
		return
	}

	maxAge := time.Duration(h.cfg.SMSMaxAgeSeconds) * time.Second
	skew := time.Duration(h.cfg.SMSClockSkewSeconds) * time.Second
	if age := h.now().Sub(msg.Timestamp); age > maxAge || age < -skew {
		h.log.WithFields(logrus.Fields{
			"from":        from,
			"reporter_id": msg.ReporterID,
			"age":         age.Round(time.Second).String(),
		}).Warn("stale SMS SOS rejected")
		twiml(c, "SOS expired, please send a new one or call emergency services")
		return
	}

	if h.replays != nil {
		fresh, err := h.replays.CheckRateLimit(c.Request.Context(), "sms:sos:"+msg.Signature, maxAge+skew, 1)
		switch {
		case err != nil:
			// an SOS is never dropped because the replay store is down
			h.log.WithError(err).Warn("SMS replay check failed")
		case !fresh:
			h.log.WithFields(logrus.Fields{
				"from":        from,
				"reporter_id": msg.ReporterID,
			}).Info("duplicate SMS SOS ignored")
			twiml(c, "SOS already received. Help is being alerted.")
			return
		}
	}

	sig, err := h.service.CreateSignal(c.Request.Context(), services.CreateSignalInput{
		ReporterID:    msg.ReporterID,
		ReporterPhone: from,
		Location:      msg.Location,
		Level:         msg.Level,
		Message:       msg.Message,
		Source:        "sms",
	})
	if err != nil {
		h.log.WithError(err).WithField("reporter_id", msg.ReporterID).Error("failed to create signal from SMS")
		twiml(c, "SOS could not be recorded, please call emergency services")
		return
	}

	twiml(c, "SOS received. Ref "+sig.ID.String()[:8]+". Help is being alerted.")
}

// twiml responds in the format Twilio expects
func twiml(c *gin.Context, message string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><Response><Message>`+xmlEscape(message)+`</Message></Response>`)
}

func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return ""
	}
	return b.String()
}
