package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/remote"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.Get("X-Request-ID", "")
}

// SendError sends an error response with the request ID
func SendError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error:     msg,
		Code:      status,
		RequestID: getRequestID(c),
	})
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	var fiberErr *fiber.Error
	var apiErr *remote.APIError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, preset.ErrUnknownPreset):
		return fiber.StatusNotFound
	case errors.Is(err, globalfilter.ErrMalformedGlobalFilter):
		return fiber.StatusBadRequest
	case errors.Is(err, preset.ErrNoMetricService):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := statusForError(err)
	message := err.Error()

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		message = fiberErr.Message
	}
	if code == fiber.StatusInternalServerError {
		message = "Internal Server Error"
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return SendError(c, code, message)
}
