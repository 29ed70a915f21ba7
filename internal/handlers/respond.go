package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/utils"
)

type errorBody struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
}

// respondError maps service errors to their status codes. Anything that is
// not a ServiceError is logged and hidden behind a 500.
func respondError(c *gin.Context, err error) {
	if svcErr, ok := utils.AsServiceError(err); ok {
		body := errorBody{Error: svcErr.Code, Message: svcErr.Message}
		if svcErr.Details != "" {
			body.Details = svcErr.Details
		}
		c.JSON(svcErr.StatusCode, body)
		return
	}

	if errors.Is(err, utils.ErrConflict) {
		c.JSON(http.StatusServiceUnavailable, errorBody{
			Error:   "CONFLICT",
			Message: "the record changed concurrently, retry the request",
		})
		return
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).Error("request failed")
	c.JSON(http.StatusInternalServerError, errorBody{
		Error:   "INTERNAL",
		Message: "internal server error",
	})
}

// respondBindError reports a request body or query that failed binding
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldError{Field: fe.Field(), Tag: fe.Tag()})
		}
		c.JSON(http.StatusBadRequest, errorBody{
			Error:   utils.ErrInvalidRequest.Code,
			Message: "validation failed",
			Details: fields,
		})
		return
	}
	c.JSON(http.StatusBadRequest, errorBody{
		Error:   utils.ErrInvalidRequest.Code,
		Message: "malformed request",
		Details: err.Error(),
	})
}
