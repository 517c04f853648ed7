package handler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/middleware"
	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/internal/utils"
)

// InterviewHandler exposes the live interview over REST and websocket.
type InterviewHandler struct {
	service   service.InterviewService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewInterviewHandler creates an interview handler instance.
func NewInterviewHandler(service service.InterviewService, validator *validator.Validate, logger zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "interview_handler").Logger(),
	}
}

// Register binds interview routes. respondLimit, when set, guards answer submission.
func (h *InterviewHandler) Register(router fiber.Router, respondLimit fiber.Handler) {
	router.Post("/", h.start)
	router.Get("/:id/state", h.state)
	if respondLimit != nil {
		router.Post("/:id/responses", respondLimit, h.respond)
	} else {
		router.Post("/:id/responses", h.respond)
	}
	router.Post("/:id/retry", h.retry)
	router.Post("/:id/frames", h.frame)
	router.Post("/:id/camera-denied", h.cameraDenied)
	router.Delete("/:id", h.close)
	router.Get("/:id/ws", h.upgrade, websocket.New(h.live))
}

func (h *InterviewHandler) start(c *fiber.Ctx) error {
	var req dto.StartInterviewRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	snapshot, err := h.service.Start(requestContext(c), req)
	if err != nil {
		return h.handleError(c, err, snapshot)
	}

	requestLogger(h.logger, c).Info().
		Str("session_id", snapshot.SessionID).
		Str("role", snapshot.Settings.Role).
		Str("user_id", middleware.UserID(c)).
		Msg("interview started")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "interview started", snapshot.Response())
}

func (h *InterviewHandler) state(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	snapshot, err := h.service.State(id)
	if err != nil {
		return h.handleError(c, err, service.Snapshot{})
	}
	return utils.SendSuccess(c, "interview state", snapshot.Response())
}

func (h *InterviewHandler) respond(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.SubmitResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return h.handleError(c, err, service.Snapshot{})
	}

	snapshot, err := h.service.Respond(requestContext(c), id, req.Text)
	if err != nil {
		return h.handleError(c, err, snapshot)
	}
	return utils.SendSuccess(c, "response recorded", snapshot.Response())
}

func (h *InterviewHandler) retry(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	snapshot, err := h.service.Retry(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err, snapshot)
	}
	return utils.SendSuccess(c, "interview resumed", snapshot.Response())
}

func (h *InterviewHandler) frame(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.FrameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return h.handleError(c, err, service.Snapshot{})
	}

	if err := h.service.PushFrame(id, req.Frame); err != nil {
		return h.handleError(c, err, service.Snapshot{})
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "frame accepted", nil)
}

func (h *InterviewHandler) cameraDenied(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.ReportCameraDenied(id); err != nil {
		return h.handleError(c, err, service.Snapshot{})
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "proctoring disabled", nil)
}

func (h *InterviewHandler) close(c *fiber.Ctx) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Close(id); err != nil {
		return h.handleError(c, err, service.Snapshot{})
	}
	return utils.SendSuccess(c, "interview closed", nil)
}

func (h *InterviewHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("request_ctx", requestContext(c))
	return c.Next()
}

// handleError attaches the current state when a live session exists so the
// client can render lastError and offer a retry.
func (h *InterviewHandler) handleError(c *fiber.Ctx, err error, snapshot service.Snapshot) error {
	if snapshot.SessionID != "" {
		return writeError(c, h.logger, err, snapshot.Response())
	}
	return writeError(c, h.logger, err, nil)
}

// liveOutbound is a server frame on the interview websocket.
type liveOutbound struct {
	Type    string                      `json:"type"`
	Event   *service.Event              `json:"event,omitempty"`
	State   *dto.InterviewStateResponse `json:"state,omitempty"`
	Message string                      `json:"message,omitempty"`
}

type liveConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (l *liveConn) send(msg liveOutbound) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteJSON(msg)
}

func (h *InterviewHandler) live(conn *websocket.Conn) {
	sessionID := conn.Params("id")
	baseCtx, ok := conn.Locals("request_ctx").(context.Context)
	if !ok || baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(baseCtx))
	defer cancel()

	logger := h.logger.With().Str("session_id", sessionID).Logger()

	events, unsubscribe, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		status, message := errorStatus(err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
		_ = conn.Close()
		logger.Debug().Err(err).Int("status", status).Msg("interview websocket rejected")
		return
	}
	defer unsubscribe()

	out := &liveConn{conn: conn}
	if snapshot, err := h.service.State(sessionID); err == nil {
		state := snapshot.Response()
		_ = out.send(liveOutbound{Type: "snapshot", State: &state})
	}

	logger.Info().Msg("interview websocket connected")

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for event := range events {
			msg := liveOutbound{Type: string(event.Type)}
			current := event
			msg.Event = &current
			if event.Type == service.EventState {
				if snapshot, err := h.service.State(sessionID); err == nil {
					state := snapshot.Response()
					msg.State = &state
				}
			}
			if err := out.send(msg); err != nil {
				logger.Debug().Err(err).Msg("interview websocket write failed")
				cancel()
				return
			}
		}
	}()

	var turns sync.WaitGroup
	for ctx.Err() == nil {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg dto.LiveMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = out.send(liveOutbound{Type: "error", Message: "invalid message"})
			continue
		}
		if err := h.validator.Struct(msg); err != nil {
			_ = out.send(liveOutbound{Type: "error", Message: "unsupported message"})
			continue
		}

		h.dispatch(ctx, sessionID, msg, out, &turns)
	}

	cancel()
	turns.Wait()
	unsubscribe()
	writer.Wait()
	logger.Info().Msg("interview websocket disconnected")
}

func (h *InterviewHandler) dispatch(ctx context.Context, sessionID string, msg dto.LiveMessage, out *liveConn, turns *sync.WaitGroup) {
	reply := func(err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		_, message := errorStatus(err)
		_ = out.send(liveOutbound{Type: "error", Message: message})
	}

	turnCtx := context.WithoutCancel(ctx)

	switch msg.Type {
	case "ping":
		_ = out.send(liveOutbound{Type: "pong"})
	case "speech":
		reply(h.service.PushSpeech(sessionID, msg.Text, msg.Final))
	case "frame":
		reply(h.service.PushFrame(sessionID, msg.Frame))
	case "camera_denied":
		reply(h.service.ReportCameraDenied(sessionID))
	case "response":
		turns.Add(1)
		go func() {
			defer turns.Done()
			_, err := h.service.Respond(turnCtx, sessionID, msg.Text)
			reply(err)
		}()
	case "retry":
		turns.Add(1)
		go func() {
			defer turns.Done()
			_, err := h.service.Retry(turnCtx, sessionID)
			reply(err)
		}()
	}
}
