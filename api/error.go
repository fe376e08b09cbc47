package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/katatrina/auction-house/internal/auction"
)

var (
	ErrMissingNickname = errors.New("nickname query parameter is required")
)

type FailedValidationResponse struct {
	Message         string            `json:"message"`
	FieldViolations []*FieldViolation `json:"field_violations"`
}

type FieldViolation struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func fieldViolation(field string, err error) *FieldViolation {
	return &FieldViolation{
		Field:       field,
		Description: err.Error(),
	}
}

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}

func failedValidationError(violations []*FieldViolation) *FailedValidationResponse {
	return &FailedValidationResponse{
		Message:         "Invalid request parameters",
		FieldViolations: violations,
	}
}

// errorStatus maps engine errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, auction.ErrNameInUse):
		return http.StatusConflict
	case auction.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrNoActiveRound), errors.Is(err, auction.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auction.ErrEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
