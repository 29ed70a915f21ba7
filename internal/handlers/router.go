package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handlers groups everything the router mounts
type Handlers struct {
	SOS        *SOSHandler
	Responders *ResponderHandler
	SMS        *SMSHandler
}

func SetupRouter(h Handlers, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "rescuelink-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Public listing, no actor needed
		v1.GET("/sos/public/nearby", h.SOS.PublicNearby)

		// SMS webhook
		if h.SMS != nil {
			v1.POST("/sms/webhook", h.SMS.HandleIncomingSMS)
		}

		authed := v1.Group("", RequireActor())

		// SOS endpoints
		authed.GET("/sos/nearby", h.SOS.Nearby)
		authed.POST("/sos", h.SOS.CreateSignal)
		authed.POST("/sos/:id/accept", h.SOS.Accept)
		authed.POST("/sos/:id/mark-safe", h.SOS.MarkSafe)
		authed.GET("/sos/:id/status", h.SOS.Status)
		authed.PUT("/sos/response/:id/status", h.SOS.UpdateStatus)
		authed.POST("/sos/response/:id/complete", h.SOS.Complete)
		authed.POST("/sos/response/:id/chat", h.SOS.PostChat)
		authed.GET("/sos/response/:id/chat", h.SOS.ListChat)

		// Responder endpoints
		authed.GET("/responders/me", h.Responders.GetMe)
		authed.PUT("/responders/me", h.Responders.UpsertMe)
		authed.PUT("/responders/me/availability", h.Responders.SetAvailability)
		authed.PUT("/responders/me/location", h.Responders.UpdateLocation)
		authed.PUT("/responders/:id/certifications", h.Responders.ApplyCertifications)
	}

	return router
}
