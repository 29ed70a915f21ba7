package services

import (
	"context"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/config"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

// Notification is what a device or phone is told about an event
type Notification struct {
	Title string
	Body  string
	// SMS is set for events a victim without data must still hear about
	SMS bool
}

// AlertEngine delivers events to devices over FCM and to phones over Twilio.
// Delivery is best effort and never blocks the caller.
type AlertEngine struct {
	cfg          *config.Config
	twilioClient *twilio.RestClient
	fcmClient    *messaging.Client
	log          *logrus.Entry
}

// NewAlertEngine builds the notifier. fcmClient may be nil, and SMS is only
// enabled when Twilio credentials are configured.
func NewAlertEngine(cfg *config.Config, fcmClient *messaging.Client) *AlertEngine {
	var twilioClient *twilio.RestClient
	if cfg.SMSEnabled() {
		twilioClient = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSID,
			Password: cfg.TwilioAuthToken,
		})
	}

	return &AlertEngine{
		cfg:          cfg,
		twilioClient: twilioClient,
		fcmClient:    fcmClient,
		log:          logrus.WithField("component", "alert_engine"),
	}
}

// Publish implements EventPublisher
func (ae *AlertEngine) Publish(ctx context.Context, event models.Event) error {
	if len(event.Recipients) == 0 {
		return nil
	}
	n, ok := ae.BuildNotification(event)
	if !ok {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	go ae.deliver(ctx, event, n)
	return nil
}

func (ae *AlertEngine) deliver(ctx context.Context, event models.Event, n Notification) {
	data := map[string]string{
		"event":     string(event.Type),
		"signal_id": event.SignalID.String(),
	}
	if event.ResponseID != nil {
		data["response_id"] = event.ResponseID.String()
	}

	for _, r := range event.Recipients {
		if r.DeviceToken != "" && ae.fcmClient != nil {
			if err := ae.SendPushNotification(ctx, r.DeviceToken, n.Title, n.Body, data); err != nil {
				ae.log.WithError(err).WithField("event", event.Type).Warn("push delivery failed")
			}
		}
		if n.SMS && r.Phone != "" && ae.twilioClient != nil {
			if err := ae.SendSMS(r.Phone, n.Title+"\n\n"+n.Body); err != nil {
				ae.log.WithError(err).WithField("event", event.Type).Warn("sms delivery failed")
			}
		}
	}
}

// BuildNotification renders the title and body for an event. Events that
// nobody needs to be told about report false.
func (ae *AlertEngine) BuildNotification(event models.Event) (Notification, bool) {
	switch event.Type {
	case models.EventSignalCreated:
		body := "Someone near you needs help."
		if event.Location != nil {
			body += "\nMap: " + ae.generateMapLink(event.Location.Lat, event.Location.Lng)
		}
		return Notification{Title: "🚨 SOS nearby", Body: body}, true

	case models.EventSignalAccepted:
		return Notification{
			Title: "✅ Help is on the way",
			Body:  "A verified responder has accepted your SOS. Stay where you are if it is safe.",
			SMS:   true,
		}, true

	case models.EventResponseStatusChanged:
		switch event.Status {
		case models.ResponseEnRoute:
			return Notification{Title: "Responder en route", Body: "Your responder is on the way."}, true
		case models.ResponseArrived:
			return Notification{Title: "Responder arrived", Body: "Your responder has arrived at your location.", SMS: true}, true
		case models.ResponseCancelled:
			return Notification{
				Title: "Responder withdrew",
				Body:  "Your responder can no longer help. Your SOS is open again for others.",
				SMS:   true,
			}, true
		}
		return Notification{}, false

	case models.EventChatMessagePosted:
		if event.Chat == nil {
			return Notification{}, false
		}
		return Notification{Title: "New message", Body: truncate(event.Chat.Text, 140)}, true

	case models.EventSignalCancelled:
		return Notification{
			Title: "SOS cancelled",
			Body:  "The person you were helping has marked themselves safe. No further action needed.",
			SMS:   true,
		}, true

	case models.EventSignalResolved:
		return Notification{
			Title: "Rescue completed",
			Body:  "Your responder has marked the rescue complete. Stay safe.",
			SMS:   true,
		}, true
	}
	return Notification{}, false
}

// SendSMS sends an SMS via Twilio
func (ae *AlertEngine) SendSMS(to, message string) error {
	if ae.twilioClient == nil {
		return fmt.Errorf("twilio client not initialized")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(ae.cfg.TwilioPhoneNumber)
	params.SetBody(message)

	resp, err := ae.twilioClient.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio SMS error: %w", err)
	}

	if resp.ErrorCode != nil {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error code: %d, message: %s", *resp.ErrorCode, msg)
	}

	return nil
}

// SendPushNotification sends a push notification via FCM
func (ae *AlertEngine) SendPushNotification(ctx context.Context, fcmToken, title, body string, data map[string]string) error {
	if ae.fcmClient == nil {
		return fmt.Errorf("FCM client not initialized")
	}

	message := &messaging.Message{
		Token: fcmToken,
		Data:  data,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Priority: messaging.PriorityHigh,
				Sound:    "default",
			},
		},
	}

	_, err := ae.fcmClient.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("FCM error: %w", err)
	}

	return nil
}

// generateMapLink creates a link to view location on map
func (ae *AlertEngine) generateMapLink(lat, lng float64) string {
	if ae.cfg.MapboxToken != "" {
		// Mapbox static map
		return fmt.Sprintf(
			"https://api.mapbox.com/styles/v1/mapbox/streets-v11/static/pin-s+f74e4e(%.6f,%.6f)/%.6f,%.6f,15,0/600x400@2x?access_token=%s",
			lng, lat, lng, lat, ae.cfg.MapboxToken,
		)
	}
	// Fallback to Google Maps
	return fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", lat, lng)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
