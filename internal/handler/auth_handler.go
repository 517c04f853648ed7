package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/internal/utils"
)

// AuthHandler issues bearer tokens.
type AuthHandler struct {
	service service.AuthService
	logger  zerolog.Logger
}

// NewAuthHandler constructs the login handler.
func NewAuthHandler(service service.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register binds auth routes.
func (h *AuthHandler) Register(router fiber.Router) {
	router.Post("/login", h.login)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	resp, err := h.service.Login(requestContext(c), req)
	if err != nil {
		return writeError(c, h.logger, err, nil)
	}
	return utils.SendSuccess(c, "login successful", resp)
}
