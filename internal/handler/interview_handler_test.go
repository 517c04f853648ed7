package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/handler"
	"github.com/noah-isme/proprep-api/internal/middleware"
	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

func newInterviewApp(svc service.InterviewService) *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	h := handler.NewInterviewHandler(svc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	h.Register(app.Group("/interviews"), nil)
	return app
}

func TestInterviewHandler_StartReturnsCreatedState(t *testing.T) {
	svc := newStubInterviewService(awaitingSnapshot("s-1"))
	app := newInterviewApp(svc)

	req := jsonRequest(t, http.MethodPost, "/interviews", dto.StartInterviewRequest{
		Role:       "Backend Engineer",
		Difficulty: "medium",
		Topics:     []string{"concurrency"},
		Proctoring: true,
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	require.True(t, body.Success)

	var state dto.InterviewStateResponse
	require.NoError(t, json.Unmarshal(body.Data, &state))
	require.Equal(t, "s-1", state.SessionID)
	require.Equal(t, "awaiting_response", state.Phase)
	require.Len(t, state.Transcript, 1)
	require.Equal(t, []string{"concurrency"}, svc.startReq.Topics)
	require.True(t, svc.startReq.Proctoring)
}

func TestInterviewHandler_StartValidationDetails(t *testing.T) {
	svc := newStubInterviewService(service.Snapshot{})
	svc.err = validator.New().Struct(dto.StartInterviewRequest{})
	app := newInterviewApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/interviews", map[string]string{}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	require.False(t, body.Success)
	require.Equal(t, "validation failed", body.Message)

	var details []string
	require.NoError(t, json.Unmarshal(body.Details, &details))
	require.Contains(t, details, "Role failed required")
}

func TestInterviewHandler_RespondMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"empty response", service.ErrEmptyResponse, fiber.StatusBadRequest},
		{"not awaiting", service.ErrNotAwaitingResponse, fiber.StatusConflict},
		{"not live", service.ErrSessionNotLive, fiber.StatusNotFound},
		{"timeout", fmt.Errorf("next question: %w", ai.ErrTimeout), fiber.StatusGatewayTimeout},
		{"invalid output", fmt.Errorf("score: %w", ai.ErrInvalidOutput), fiber.StatusBadGateway},
		{"rate limited", &ai.ProviderError{Provider: "openai", Code: ai.ErrCodeRateLimit, Message: "slow down"}, fiber.StatusTooManyRequests},
		{"provider down", &ai.ProviderError{Provider: "gemini", Code: ai.ErrCodeServiceDown, Message: "down"}, fiber.StatusBadGateway},
		{"unexpected", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := awaitingSnapshot("s-1")
			snapshot.LastError = "the interviewer is unavailable"
			svc := newStubInterviewService(snapshot)
			svc.err = tc.err
			app := newInterviewApp(svc)

			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/interviews/s-1/responses", dto.SubmitResponseRequest{Text: "I would shard it"}))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			body := decodeEnvelope(t, resp)
			require.False(t, body.Success)

			var state dto.InterviewStateResponse
			require.NoError(t, json.Unmarshal(body.Details, &state))
			require.Equal(t, "s-1", state.SessionID)
			require.Equal(t, snapshot.LastError, state.LastError)
		})
	}
}

func TestInterviewHandler_FrameRequiresPayload(t *testing.T) {
	svc := newStubInterviewService(awaitingSnapshot("s-1"))
	app := newInterviewApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/interviews/s-1/frames", dto.FrameRequest{}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, svc.frames)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/interviews/s-1/frames", dto.FrameRequest{Frame: "data:image/png;base64,AAAA"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	require.Equal(t, []string{"data:image/png;base64,AAAA"}, svc.frames)
}

func TestInterviewHandler_CameraDeniedAndClose(t *testing.T) {
	svc := newStubInterviewService(awaitingSnapshot("s-1"))
	app := newInterviewApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/interviews/s-1/camera-denied", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, svc.cameraDenied)

	resp, err = app.Test(jsonRequest(t, http.MethodDelete, "/interviews/s-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"s-1"}, svc.closed)
}

func TestInterviewHandler_CameraDeniedWithoutProctoring(t *testing.T) {
	svc := newStubInterviewService(awaitingSnapshot("s-1"))
	svc.err = service.ErrProctoringDisabled
	app := newInterviewApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/interviews/s-1/camera-denied", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestInterviewHandler_StateRequiresUpgradeForWebsocket(t *testing.T) {
	svc := newStubInterviewService(awaitingSnapshot("s-1"))
	app := newInterviewApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/interviews/s-1/ws", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/interviews/s-1/state", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

type liveFrame struct {
	Type    string                      `json:"type"`
	Event   *service.Event              `json:"event"`
	State   *dto.InterviewStateResponse `json:"state"`
	Message string                      `json:"message"`
}

func readLive(t *testing.T, conn *websocket.Conn) liveFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame liveFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestInterviewHandler_LiveWebsocketRoundTrip(t *testing.T) {
	svc := newStubInterviewService(awaitingSnapshot("s-1"))
	app := newInterviewApp(svc)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/interviews/s-1/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"live-1"}})
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	first := readLive(t, conn)
	require.Equal(t, "snapshot", first.Type)
	require.NotNil(t, first.State)
	require.Equal(t, "awaiting_response", first.State.Phase)

	require.NoError(t, conn.WriteJSON(dto.LiveMessage{Type: "ping"}))
	require.Equal(t, "pong", readLive(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	rejected := readLive(t, conn)
	require.Equal(t, "error", rejected.Type)
	require.Equal(t, "unsupported message", rejected.Message)

	require.NoError(t, conn.WriteJSON(dto.LiveMessage{Type: "speech", Text: "I would"}))
	require.NoError(t, conn.WriteJSON(dto.LiveMessage{Type: "speech", Text: "I would use a queue", Final: true}))
	require.NoError(t, conn.WriteJSON(dto.LiveMessage{Type: "response", Text: "Because of goroutines"}))

	update := readLive(t, conn)
	require.Equal(t, "state", update.Type)
	require.NotNil(t, update.Event)
	require.Equal(t, service.EventState, update.Event.Type)
	require.NotNil(t, update.State)
	require.Equal(t, "s-1", update.State.SessionID)

	require.Equal(t, []string{"Because of goroutines"}, svc.recordedResponses())
	require.Equal(t, []string{"I would use a queue"}, svc.recordedSpeech())
}

func TestInterviewHandler_LiveWebsocketRejectsUnknownSession(t *testing.T) {
	svc := newStubInterviewService(service.Snapshot{})
	svc.err = service.ErrSessionNotLive
	app := newInterviewApp(svc)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/interviews/missing/ws"
	conn, resp, err := websocket.DefaultDialer.DialContext(context.Background(), url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}
