package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/services"
)

type ResponderHandler struct {
	service *services.CoordinationService
}

func NewResponderHandler(service *services.CoordinationService) *ResponderHandler {
	return &ResponderHandler{service: service}
}

type ResponderRequest struct {
	Name                 string  `json:"name" binding:"required,max=200"`
	Phone                string  `json:"phone" binding:"omitempty,e164"`
	DeviceToken          string  `json:"device_token"`
	AvailabilityRadiusKm float64 `json:"availability_radius_km" binding:"gte=0"`
}

type AvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

type CertificationRequest struct {
	Type     string `json:"type" binding:"required"`
	Verified bool   `json:"verified"`
}

type CertificationsRequest struct {
	Certifications     []CertificationRequest `json:"certifications" binding:"dive"`
	VerificationStatus string                 `json:"verification_status" binding:"required,oneof=pending verified"`
}

// PUT /v1/responders/me
func (h *ResponderHandler) UpsertMe(c *gin.Context) {
	var req ResponderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.service.UpsertResponder(c.Request.Context(), actorID(c), services.ResponderInput{
		Name:                 req.Name,
		Phone:                req.Phone,
		DeviceToken:          req.DeviceToken,
		AvailabilityRadiusKm: req.AvailabilityRadiusKm,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GET /v1/responders/me
func (h *ResponderHandler) GetMe(c *gin.Context) {
	r, err := h.service.GetResponder(c.Request.Context(), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// PUT /v1/responders/me/availability
func (h *ResponderHandler) SetAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.service.SetAvailability(c.Request.Context(), actorID(c), *req.Available)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// PUT /v1/responders/me/location
func (h *ResponderHandler) UpdateLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	r, err := h.service.UpdateResponderLocation(c.Request.Context(), actorID(c), *req.toModel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// PUT /v1/responders/:id/certifications
// Called by the verification authority, not by the responder.
func (h *ResponderHandler) ApplyCertifications(c *gin.Context) {
	var req CertificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	certs := make(models.Certifications, 0, len(req.Certifications))
	for _, cert := range req.Certifications {
		certs = append(certs, models.Certification{Type: cert.Type, Verified: cert.Verified})
	}

	r, err := h.service.ApplyCertifications(
		c.Request.Context(),
		c.Param("id"),
		certs,
		models.VerificationStatus(req.VerificationStatus),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
