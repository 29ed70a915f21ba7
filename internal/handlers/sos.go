package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/config"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/services"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

// RateLimiter is satisfied by database.RedisDB
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, window time.Duration, limit int) (bool, error)
}

type SOSHandler struct {
	cfg     *config.Config
	service *services.CoordinationService
	limiter RateLimiter
}

// NewSOSHandler builds the SOS endpoints. limiter may be nil to disable
// chat rate limiting.
func NewSOSHandler(cfg *config.Config, service *services.CoordinationService, limiter RateLimiter) *SOSHandler {
	return &SOSHandler{
		cfg:     cfg,
		service: service,
		limiter: limiter,
	}
}

type LocationRequest struct {
	Lat *float64 `json:"lat" form:"lat" binding:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" form:"lng" binding:"required,gte=-180,lte=180"`
}

func (l *LocationRequest) toModel() *models.Location {
	if l == nil {
		return nil
	}
	return &models.Location{Lat: *l.Lat, Lng: *l.Lng}
}

type CreateSignalRequest struct {
	Location      LocationRequest       `json:"location"`
	Level         models.EmergencyLevel `json:"level" binding:"required,emergency_level"`
	Message       string                `json:"message" binding:"max=1000"`
	Priority      int                   `json:"priority" binding:"gte=0"`
	ReporterPhone string                `json:"reporter_phone"`
	DeviceToken   string                `json:"device_token"`
}

type NearbyQuery struct {
	LocationRequest
	RadiusKm float64 `form:"radius_km" binding:"gte=0"`
}

type UpdateStatusRequest struct {
	Status   models.ResponseState `json:"status" binding:"required,response_status"`
	Location *LocationRequest     `json:"location"`
}

type MarkSafeRequest struct {
	Location *LocationRequest `json:"location"`
}

type MissingPersonRequest struct {
	Name            string           `json:"name" binding:"required,max=200"`
	Age             int              `json:"age" binding:"gte=0,lte=150"`
	Gender          string           `json:"gender"`
	Description     string           `json:"description" binding:"max=2000"`
	LastSeen        *LocationRequest `json:"last_seen"`
	ReporterContact string           `json:"reporter_contact"`
}

type CompleteRequest struct {
	Outcome                  models.RescueOutcome  `json:"outcome" binding:"required,rescue_outcome"`
	VictimStatus             models.VictimStatus   `json:"victim_status" binding:"required,victim_status"`
	ReliefCamp               *models.ReliefCampRef `json:"relief_camp"`
	CreateMissingPersonEntry bool                  `json:"create_missing_person_entry"`
	MissingPerson            *MissingPersonRequest `json:"missing_person" binding:"required_if=CreateMissingPersonEntry true"`
	Notes                    string                `json:"notes" binding:"max=4000"`
}

func (r CompleteRequest) toModel() models.CompletionRecord {
	record := models.CompletionRecord{
		Outcome:                  r.Outcome,
		VictimStatus:             r.VictimStatus,
		ReliefCamp:               r.ReliefCamp,
		CreateMissingPersonEntry: r.CreateMissingPersonEntry,
		Notes:                    r.Notes,
	}
	if mp := r.MissingPerson; mp != nil {
		record.MissingPerson = &models.MissingPersonEntry{
			Name:            mp.Name,
			Age:             mp.Age,
			Gender:          mp.Gender,
			Description:     mp.Description,
			LastSeen:        mp.LastSeen.toModel(),
			ReporterContact: mp.ReporterContact,
		}
	}
	return record
}

type ChatRequest struct {
	Text string `json:"text" binding:"required,max=2000"`
}

// publicSignal leaves out everything that identifies the reporter
type publicSignal struct {
	ID         uuid.UUID             `json:"id"`
	Location   models.Location       `json:"location"`
	Level      models.EmergencyLevel `json:"level"`
	Priority   int                   `json:"priority"`
	Status     models.SignalState    `json:"status"`
	DistanceKm float64               `json:"distance_km"`
	CreatedAt  time.Time             `json:"created_at"`
}

// GET /v1/sos/public/nearby?lat=..&lng=..&radius_km=..
func (h *SOSHandler) PublicNearby(c *gin.Context) {
	var q NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}

	nearby, err := h.service.NearbySignalsAt(c.Request.Context(), *q.toModel(), q.RadiusKm)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]publicSignal, 0, len(nearby))
	for _, n := range nearby {
		out = append(out, publicSignal{
			ID:         n.Signal.ID,
			Location:   n.Signal.Location,
			Level:      n.Signal.Level,
			Priority:   n.Signal.Priority,
			Status:     n.Signal.Status,
			DistanceKm: n.DistanceKm,
			CreatedAt:  n.Signal.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"signals": out, "count": len(out)})
}

// GET /v1/sos/nearby
func (h *SOSHandler) Nearby(c *gin.Context) {
	nearby, err := h.service.ListNearbySignals(c.Request.Context(), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": nearby, "count": len(nearby)})
}

// POST /v1/sos
func (h *SOSHandler) CreateSignal(c *gin.Context) {
	var req CreateSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	sig, err := h.service.CreateSignal(c.Request.Context(), services.CreateSignalInput{
		ReporterID:    actorID(c),
		ReporterPhone: req.ReporterPhone,
		DeviceToken:   req.DeviceToken,
		Location:      *req.Location.toModel(),
		Level:         req.Level,
		Message:       req.Message,
		Priority:      req.Priority,
		Source:        "app",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sig)
}

// POST /v1/sos/:id/accept
func (h *SOSHandler) Accept(c *gin.Context) {
	signalID, ok := pathUUID(c)
	if !ok {
		return
	}

	resp, err := h.service.AcceptSignal(c.Request.Context(), actorID(c), signalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// PUT /v1/sos/response/:id/status
func (h *SOSHandler) UpdateStatus(c *gin.Context) {
	responseID, ok := pathUUID(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.service.UpdateResponseStatus(c.Request.Context(), responseID, actorID(c), req.Status, req.Location.toModel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /v1/sos/:id/mark-safe
func (h *SOSHandler) MarkSafe(c *gin.Context) {
	signalID, ok := pathUUID(c)
	if !ok {
		return
	}
	var req MarkSafeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	sig, err := h.service.MarkVictimSafe(c.Request.Context(), signalID, actorID(c), req.Location.toModel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

// POST /v1/sos/response/:id/complete
func (h *SOSHandler) Complete(c *gin.Context) {
	responseID, ok := pathUUID(c)
	if !ok {
		return
	}
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.service.CompleteRescue(c.Request.Context(), responseID, actorID(c), req.toModel())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /v1/sos/response/:id/chat
func (h *SOSHandler) PostChat(c *gin.Context) {
	responseID, ok := pathUUID(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if h.limiter != nil {
		key := fmt.Sprintf("chat:%s:%s", responseID, actorID(c))
		window := time.Duration(h.cfg.ChatRateWindowSeconds) * time.Second
		allowed, err := h.limiter.CheckRateLimit(c.Request.Context(), key, window, h.cfg.ChatRateLimit)
		if err != nil {
			respondError(c, fmt.Errorf("rate limit check failed: %w", err))
			return
		}
		if !allowed {
			respondError(c, utils.ErrRateLimited)
			return
		}
	}

	msg, err := h.service.PostChatMessage(c.Request.Context(), responseID, actorID(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GET /v1/sos/response/:id/chat
func (h *SOSHandler) ListChat(c *gin.Context) {
	responseID, ok := pathUUID(c)
	if !ok {
		return
	}

	messages, err := h.service.ListChat(c.Request.Context(), responseID, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

// GET /v1/sos/:id/status
func (h *SOSHandler) Status(c *gin.Context) {
	signalID, ok := pathUUID(c)
	if !ok {
		return
	}

	status, err := h.service.GetSignalStatus(c.Request.Context(), signalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func pathUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, utils.ErrInvalidRequest.WithDetails("invalid id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}
