package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

func awaitingSnapshot(id string) service.Snapshot {
	return service.Snapshot{
		SessionID: id,
		Phase:     service.PhaseAwaitingResponse,
		Settings:  service.InterviewSettings{Role: "Backend Engineer", Difficulty: "medium"},
		Transcript: []models.Message{
			{ID: "m-1", Role: models.MessageRoleAI, Content: "Why Go?"},
		},
		StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// stubInterviewService records calls and returns canned results.
type stubInterviewService struct {
	mu sync.Mutex

	snapshot service.Snapshot
	err      error

	startReq     dto.StartInterviewRequest
	responses    []string
	frames       []string
	speech       []string
	cameraDenied int
	closed       []string

	events      chan service.Event
	unsubscribe sync.Once
}

func newStubInterviewService(snapshot service.Snapshot) *stubInterviewService {
	return &stubInterviewService{snapshot: snapshot, events: make(chan service.Event, 16)}
}

func (s *stubInterviewService) result() (service.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.err
}

func (s *stubInterviewService) Start(_ context.Context, req dto.StartInterviewRequest) (service.Snapshot, error) {
	s.mu.Lock()
	s.startReq = req
	s.mu.Unlock()
	return s.result()
}

func (s *stubInterviewService) State(string) (service.Snapshot, error) {
	return s.result()
}

func (s *stubInterviewService) Respond(_ context.Context, sessionID, text string) (service.Snapshot, error) {
	s.mu.Lock()
	s.responses = append(s.responses, text)
	s.mu.Unlock()

	snapshot, err := s.result()
	if err == nil {
		s.events <- service.Event{Type: service.EventState, SessionID: sessionID, Phase: snapshot.Phase.String()}
	}
	return snapshot, err
}

func (s *stubInterviewService) Retry(context.Context, string) (service.Snapshot, error) {
	return s.result()
}

func (s *stubInterviewService) PushFrame(_ string, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, payload)
	return s.err
}

func (s *stubInterviewService) ReportCameraDenied(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameraDenied++
	return s.err
}

func (s *stubInterviewService) PushSpeech(_ string, text string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if final {
		s.speech = append(s.speech, text)
	}
	return s.err
}

func (s *stubInterviewService) Subscribe(context.Context, string) (<-chan service.Event, func(), error) {
	if _, err := s.result(); err != nil {
		return nil, nil, err
	}
	return s.events, func() {
		s.unsubscribe.Do(func() { close(s.events) })
	}, nil
}

func (s *stubInterviewService) Close(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, sessionID)
	return s.err
}

func (s *stubInterviewService) EvictIdle(time.Time) int   { return 0 }
func (s *stubInterviewService) Run(context.Context) error { return nil }
func (s *stubInterviewService) Shutdown()                 {}

func (s *stubInterviewService) recordedResponses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.responses...)
}

func (s *stubInterviewService) recordedSpeech() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.speech...)
}
