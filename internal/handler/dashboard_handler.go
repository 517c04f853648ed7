package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/internal/utils"
)

// DashboardHandler exposes the interview history aggregates.
type DashboardHandler struct {
	service service.DashboardService
	logger  zerolog.Logger
}

// NewDashboardHandler constructs a dashboard handler.
func NewDashboardHandler(service service.DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: service,
		logger:  logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register binds dashboard routes.
func (h *DashboardHandler) Register(router fiber.Router) {
	router.Get("/", h.stats)
}

func (h *DashboardHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(requestContext(c))
	if err != nil {
		return writeError(c, h.logger, err, nil)
	}
	return utils.SendSuccess(c, "dashboard stats", stats)
}
