package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/internal/utils"
)

// SessionHandler serves stored interview sessions.
type SessionHandler struct {
	service service.SessionHistoryService
	logger  zerolog.Logger
}

// NewSessionHandler constructs a session history handler.
func NewSessionHandler(service service.SessionHistoryService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register binds session routes.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/:id", h.review)
	router.Post("/:id/report", h.regenerateReport)
}

func (h *SessionHandler) list(c *fiber.Ctx) error {
	sessions, err := h.service.List(requestContext(c))
	if err != nil {
		return writeError(c, h.logger, err, nil)
	}
	return utils.OK(c, sessions, "interview sessions", fiber.Map{"total": len(sessions)})
}

func (h *SessionHandler) review(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	review, err := h.service.Review(requestContext(c), id)
	if err != nil {
		return writeError(c, h.logger, err, nil)
	}
	return utils.SendSuccess(c, "interview session", review)
}

func (h *SessionHandler) regenerateReport(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.RegenerateReport(requestContext(c), id)
	if err != nil {
		return writeError(c, h.logger, err, nil)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "summary report generated", report)
}
