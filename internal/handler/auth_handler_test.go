package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proprep-api/internal/config"
	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/handler"
	"github.com/noah-isme/proprep-api/internal/service"
)

func newAuthApp() *fiber.App {
	svc := service.NewAuthService(service.AuthConfig{
		Secret:       "test-secret",
		DemoEmail:    "demo@proprep.dev",
		DemoPassword: "hunter2",
		TokenTTL:     time.Hour,
	}, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	app := fiber.New()
	handler.NewAuthHandler(svc, zerolog.Nop()).Register(app.Group("/auth"))
	return app
}

func TestAuthHandler_LoginIssuesToken(t *testing.T) {
	app := newAuthApp()

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/auth/login", dto.LoginRequest{Email: "demo@proprep.dev", Password: "hunter2"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	var login dto.LoginResponse
	require.NoError(t, json.Unmarshal(body.Data, &login))
	require.NotEmpty(t, login.Token)
	require.Equal(t, "Bearer", login.TokenType)
}

func TestAuthHandler_LoginRejectsBadCredentials(t *testing.T) {
	app := newAuthApp()

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/auth/login", dto.LoginRequest{Email: "demo@proprep.dev", Password: "wrong"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/auth/login", dto.LoginRequest{Email: "not-an-email", Password: "x"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

type stubDashboardService struct {
	stats dto.DashboardStatsResponse
	err   error
}

func (s *stubDashboardService) Stats(context.Context) (dto.DashboardStatsResponse, error) {
	return s.stats, s.err
}

func (s *stubDashboardService) Invalidate(context.Context) error { return nil }

func TestDashboardHandler_Stats(t *testing.T) {
	svc := &stubDashboardService{stats: dto.DashboardStatsResponse{TotalInterviews: 3, CompletedInterviews: 2, AverageScore: 71, MostFrequentRole: "SRE"}}
	app := fiber.New()
	handler.NewDashboardHandler(svc, zerolog.Nop()).Register(app.Group("/dashboard"))

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	var stats dto.DashboardStatsResponse
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	require.Equal(t, 71, stats.AverageScore)
	require.Equal(t, "SRE", stats.MostFrequentRole)

	svc.err = errors.New("database unavailable")
	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestHealthCheck_ReportsDependencies(t *testing.T) {
	cfg := config.Config{AppName: "ProPrep API", AppEnv: "test", AIProvider: "gemini"}
	healthy := map[string]handler.HealthProbe{
		"database": func(context.Context) error { return nil },
	}

	app := fiber.New()
	app.Get("/health", handler.HealthCheck(cfg, healthy))

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	var payload handler.HealthResponse
	require.NoError(t, json.Unmarshal(body.Data, &payload))
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, "gemini", payload.AIProvider)
	require.Equal(t, "up", payload.Dependencies["database"])
}

func TestHealthCheck_DegradedWhenProbeFails(t *testing.T) {
	cfg := config.Config{AppName: "ProPrep API", AIProvider: "openai"}
	probes := map[string]handler.HealthProbe{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}

	app := fiber.New()
	app.Get("/health", handler.HealthCheck(cfg, probes))

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	var payload handler.HealthResponse
	require.NoError(t, json.Unmarshal(body.Data, &payload))
	require.Equal(t, "degraded", payload.Status)
	require.Equal(t, "down: connection refused", payload.Dependencies["redis"])
}
