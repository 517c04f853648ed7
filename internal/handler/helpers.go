package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/middleware"
	"github.com/noah-isme/proprep-api/internal/repository"
	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/internal/utils"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func sessionIDParam(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return "", errors.New("session id required")
	}
	return id, nil
}

func validationDetails(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details = append(details, fieldErr.Field()+" failed "+fieldErr.Tag())
	}
	return details
}

// errorStatus maps service errors onto HTTP statuses and client messages.
func errorStatus(err error) (int, string) {
	var (
		validationErrors validator.ValidationErrors
		providerErr      *ai.ProviderError
	)

	switch {
	case errors.As(err, &validationErrors):
		return fiber.StatusBadRequest, "validation failed"
	case errors.Is(err, service.ErrEmptyResponse):
		return fiber.StatusBadRequest, "response text is required"
	case errors.Is(err, service.ErrInvalidFrame):
		return fiber.StatusBadRequest, "frame must be a base64 encoded image"
	case errors.Is(err, service.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, repository.ErrSessionNotFound):
		return fiber.StatusNotFound, "interview session not found"
	case errors.Is(err, service.ErrSessionNotLive), errors.Is(err, service.ErrSessionClosed):
		return fiber.StatusNotFound, "interview session is not live"
	case errors.Is(err, service.ErrNotAwaitingResponse),
		errors.Is(err, service.ErrNoPendingQuestion),
		errors.Is(err, service.ErrNothingToRetry),
		errors.Is(err, service.ErrInterviewStarted),
		errors.Is(err, service.ErrProctoringDisabled),
		errors.Is(err, service.ErrCameraPermissionDenied),
		errors.Is(err, service.ErrReportExists):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, service.ErrNoValidTranscript):
		return fiber.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, ai.ErrTimeout):
		return fiber.StatusGatewayTimeout, "the interviewer took too long to respond"
	case errors.Is(err, ai.ErrInvalidOutput):
		return fiber.StatusBadGateway, "the interviewer returned an unexpected answer"
	case errors.As(err, &providerErr):
		if providerErr.Code == ai.ErrCodeRateLimit {
			return fiber.StatusTooManyRequests, "the interviewer is busy, try again shortly"
		}
		return fiber.StatusBadGateway, "the interviewer is unavailable"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func writeError(c *fiber.Ctx, logger zerolog.Logger, err error, details interface{}) error {
	status, message := errorStatus(err)
	log := requestLogger(logger, c)
	switch {
	case status >= fiber.StatusInternalServerError:
		log.Error().Err(err).Int("status", status).Msg("request failed")
	default:
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	if details == nil {
		if fields := validationDetails(err); fields != nil {
			details = fields
		}
	}
	return utils.Fail(c, status, message, details)
}
