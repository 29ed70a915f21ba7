package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/models"
)

// RegisterValidators adds the domain enum tags to gin's validator
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine")
	}

	validators := map[string]validator.Func{
		"emergency_level": validateEmergencyLevel,
		"response_status": validateResponseStatus,
		"rescue_outcome":  validateRescueOutcome,
		"victim_status":   validateVictimStatus,
	}
	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

func validateEmergencyLevel(fl validator.FieldLevel) bool {
	return models.EmergencyLevel(fl.Field().Int()).Valid()
}

func validateResponseStatus(fl validator.FieldLevel) bool {
	return models.ResponseState(fl.Field().String()).Valid()
}

func validateRescueOutcome(fl validator.FieldLevel) bool {
	return models.RescueOutcome(fl.Field().String()).Valid()
}

func validateVictimStatus(fl validator.FieldLevel) bool {
	return models.VictimStatus(fl.Field().String()).Valid()
}
