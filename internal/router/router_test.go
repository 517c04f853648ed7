package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proprep-api/internal/config"
	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/handler"
	"github.com/noah-isme/proprep-api/internal/middleware"
	"github.com/noah-isme/proprep-api/internal/router"
	"github.com/noah-isme/proprep-api/internal/service"
)

const testSecret = "router-secret"

type fixedDashboard struct{}

func (fixedDashboard) Stats(context.Context) (dto.DashboardStatsResponse, error) {
	return dto.DashboardStatsResponse{TotalInterviews: 1, MostFrequentRole: "SRE"}, nil
}

func (fixedDashboard) Invalidate(context.Context) error { return nil }

func newApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Config{AppName: "ProPrep API", AIProvider: "openai", JWTSecret: testSecret, ResponsesPerMinute: 5}
	auth := service.NewAuthService(service.AuthConfig{
		Secret:       testSecret,
		DemoEmail:    "demo@proprep.dev",
		DemoPassword: "hunter2",
		TokenTTL:     time.Hour,
	}, validator.New(), zerolog.Nop())

	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, zerolog.Nop()),
		DashboardHandler: handler.NewDashboardHandler(fixedDashboard{}, zerolog.Nop()),
		JWTMiddleware:    middleware.JWTProtected(testSecret),
	})
	return app
}

func login(t *testing.T, app *fiber.App) string {
	t.Helper()

	body, err := json.Marshal(dto.LoginRequest{Email: "demo@proprep.dev", Password: "hunter2"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var payload struct {
		Data dto.LoginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload.Data.Token
}

func TestRegisterProtectsDashboard(t *testing.T) {
	app := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+login(t, app))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "ProPrep API", resp.Header.Get("X-Application"))
}

func TestRegisterRejectsForeignRoles(t *testing.T) {
	app := newApp(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "someone@proprep.dev",
		"role": "guest",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRegisterServesHealthAndMetrics(t *testing.T) {
	app := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
