package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/internal/observability"
	"github.com/noah-isme/proprep-api/internal/repository"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

const (
	defaultIdleTTL         = 2 * time.Hour
	defaultCompletedTTL    = 10 * time.Minute
	defaultJanitorSchedule = "@every 1m"
	eventPublishTimeout    = 5 * time.Second
)

// CacheInvalidator drops cached aggregates when a session completes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// InterviewServiceConfig tunes the live session registry.
type InterviewServiceConfig struct {
	ProctoringInterval time.Duration
	IdleTTL            time.Duration
	CompletedTTL       time.Duration
	JanitorSchedule    string
	Clock              func() time.Time
}

// InterviewService hosts one orchestrator per live interview session.
type InterviewService interface {
	Start(ctx context.Context, req dto.StartInterviewRequest) (Snapshot, error)
	State(sessionID string) (Snapshot, error)
	Respond(ctx context.Context, sessionID, text string) (Snapshot, error)
	Retry(ctx context.Context, sessionID string) (Snapshot, error)
	PushFrame(sessionID, payload string) error
	ReportCameraDenied(sessionID string) error
	PushSpeech(sessionID, text string, final bool) error
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
	Close(sessionID string) error
	EvictIdle(now time.Time) int
	Run(ctx context.Context) error
	Shutdown()
}

type liveSession struct {
	orchestrator *InterviewOrchestrator
	frames       *FrameBuffer
	speech       *ChannelSpeechInput
	cancel       context.CancelFunc
}

func (l *liveSession) close() {
	l.orchestrator.Close()
	l.speech.Stop()
	l.cancel()
}

type interviewService struct {
	repo        repository.InterviewSessionRepository
	interviewer ai.Interviewer
	finalizer   SessionFinalizer
	events      EventPublisher
	evidence    EvidenceArchiver
	cache       CacheInvalidator
	validator   *validator.Validate
	cfg         InterviewServiceConfig
	logger      zerolog.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// InterviewServiceDeps groups the registry collaborators. Events, Evidence and Cache are optional.
type InterviewServiceDeps struct {
	Repository  repository.InterviewSessionRepository
	Interviewer ai.Interviewer
	Finalizer   SessionFinalizer
	Events      EventPublisher
	Evidence    EvidenceArchiver
	Cache       CacheInvalidator
	Validator   *validator.Validate
}

// NewInterviewService builds the live session registry.
func NewInterviewService(deps InterviewServiceDeps, cfg InterviewServiceConfig, logger zerolog.Logger) InterviewService {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.CompletedTTL <= 0 {
		cfg.CompletedTTL = defaultCompletedTTL
	}
	if cfg.JanitorSchedule == "" {
		cfg.JanitorSchedule = defaultJanitorSchedule
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	baseCtx, stop := context.WithCancel(context.Background())

	return &interviewService{
		repo:        deps.Repository,
		interviewer: deps.Interviewer,
		finalizer:   deps.Finalizer,
		events:      deps.Events,
		evidence:    deps.Evidence,
		cache:       deps.Cache,
		validator:   deps.Validator,
		cfg:         cfg,
		logger:      logger.With().Str("component", "interview_service").Logger(),
		baseCtx:     baseCtx,
		stop:        stop,
		sessions:    make(map[string]*liveSession),
	}
}

func (s *interviewService) Start(ctx context.Context, req dto.StartInterviewRequest) (Snapshot, error) {
	req.Role = strings.TrimSpace(req.Role)
	req.Difficulty = strings.ToLower(strings.TrimSpace(req.Difficulty))
	if err := s.validator.Struct(req); err != nil {
		return Snapshot{}, err
	}

	session, err := s.repo.Create(ctx, req.Role, req.Difficulty)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create session: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(s.baseCtx)
	orchestrator := NewInterviewOrchestrator(OrchestratorConfig{
		SessionID:          session.ID,
		Interviewer:        s.interviewer,
		Finalizer:          s.finalizer,
		Validator:          s.validator,
		Evidence:           s.evidence,
		ProctoringInterval: s.cfg.ProctoringInterval,
		Clock:              s.cfg.Clock,
		OnComplete:         s.onComplete,
		Logger:             s.logger,
	})

	live := &liveSession{
		orchestrator: orchestrator,
		speech:       NewChannelSpeechInput(),
		cancel:       cancel,
	}
	if req.Proctoring {
		live.frames = NewFrameBuffer()
	}

	s.mu.Lock()
	s.sessions[session.ID] = live
	s.mu.Unlock()
	observability.LiveSessions().Inc()

	s.forwardEvents(orchestrator)
	go func() {
		if err := orchestrator.ListenForSpeech(sessionCtx, live.speech); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug().Err(err).Str("session_id", session.ID).Msg("speech listener stopped")
		}
	}()

	if live.frames != nil {
		if err := orchestrator.EnableProctoring(sessionCtx, live.frames); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("proctoring not started")
		}
	}

	settings := InterviewSettings{
		Role:         req.Role,
		Difficulty:   req.Difficulty,
		Topics:       req.Topics,
		QuestionBank: req.QuestionBank,
	}

	err = orchestrator.StartInterview(ctx, settings)
	return orchestrator.Snapshot(), err
}

func (s *interviewService) State(sessionID string) (Snapshot, error) {
	live, err := s.live(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return live.orchestrator.Snapshot(), nil
}

func (s *interviewService) Respond(ctx context.Context, sessionID, text string) (Snapshot, error) {
	live, err := s.live(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	err = live.orchestrator.SubmitResponse(ctx, text)
	return live.orchestrator.Snapshot(), err
}

// Retry restarts an interview whose first question failed, or re-requests the
// next question of a stalled turn.
func (s *interviewService) Retry(ctx context.Context, sessionID string) (Snapshot, error) {
	live, err := s.live(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	orchestrator := live.orchestrator
	snapshot := orchestrator.Snapshot()
	if snapshot.Phase == PhaseIdle && len(snapshot.Transcript) == 0 && snapshot.Settings.Role != "" {
		err = orchestrator.StartInterview(ctx, snapshot.Settings)
	} else {
		err = orchestrator.RetryNextQuestion(ctx)
	}
	return orchestrator.Snapshot(), err
}

func (s *interviewService) PushFrame(sessionID, payload string) error {
	live, err := s.live(sessionID)
	if err != nil {
		return err
	}
	if live.frames == nil {
		return ErrProctoringDisabled
	}

	frame, err := ParseFrame(payload)
	if err != nil {
		return err
	}
	return live.frames.Push(frame)
}

func (s *interviewService) ReportCameraDenied(sessionID string) error {
	live, err := s.live(sessionID)
	if err != nil {
		return err
	}
	if live.frames != nil {
		live.frames.Deny()
	}
	live.orchestrator.ReportCameraDenied()
	return nil
}

func (s *interviewService) PushSpeech(sessionID, text string, final bool) error {
	live, err := s.live(sessionID)
	if err != nil {
		return err
	}
	if !live.speech.Push(text, final) {
		return ErrEmptyResponse
	}
	return nil
}

// Subscribe streams events for a live local session, or relays events published
// by the node hosting a session that is still active.
func (s *interviewService) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	if live, err := s.live(sessionID); err == nil {
		ch, cancel := live.orchestrator.Subscribe()
		return ch, cancel, nil
	}

	if s.events == nil {
		return nil, nil, ErrSessionNotLive
	}

	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, nil, ErrSessionNotLive
	}

	ch, cancel := s.events.Subscribe(sessionID)
	return ch, cancel, nil
}

func (s *interviewService) Close(sessionID string) error {
	s.mu.Lock()
	live, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotLive
	}

	live.close()
	observability.LiveSessions().Dec()
	return nil
}

// EvictIdle closes completed sessions after a grace period and any session idle
// for longer than the idle TTL. A completed session whose save failed is kept
// until the idle TTL so it can still be retried.
func (s *interviewService) EvictIdle(now time.Time) int {
	s.mu.Lock()
	evicted := make([]*liveSession, 0)
	for id, live := range s.sessions {
		idle := now.Sub(live.orchestrator.LastActivity())
		snapshot := live.orchestrator.Snapshot()
		completed := snapshot.Phase == PhaseComplete && !snapshot.SaveFailed
		if idle > s.cfg.IdleTTL || (completed && idle > s.cfg.CompletedTTL) {
			delete(s.sessions, id)
			evicted = append(evicted, live)
		}
	}
	s.mu.Unlock()

	for _, live := range evicted {
		live.close()
		observability.LiveSessions().Dec()
	}
	return len(evicted)
}

// Run starts the eviction janitor and the remote event consumer until ctx ends.
func (s *interviewService) Run(ctx context.Context) error {
	janitor := cron.New()
	if _, err := janitor.AddFunc(s.cfg.JanitorSchedule, func() {
		if n := s.EvictIdle(s.cfg.Clock()); n > 0 {
			s.logger.Info().Int("evicted", n).Msg("evicted inactive interview sessions")
		}
	}); err != nil {
		return fmt.Errorf("schedule session janitor: %w", err)
	}

	janitor.Start()
	if s.events != nil {
		s.events.Start(ctx)
	}

	go func() {
		<-ctx.Done()
		<-janitor.Stop().Done()
	}()
	return nil
}

// Shutdown closes every live session and waits for pending report pipelines.
func (s *interviewService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*liveSession)
	s.mu.Unlock()

	for _, live := range sessions {
		live.close()
		observability.LiveSessions().Dec()
	}
	s.stop()

	if s.finalizer != nil {
		s.finalizer.Wait()
	}
}

func (s *interviewService) live(sessionID string) (*liveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotLive
	}
	return live, nil
}

func (s *interviewService) forwardEvents(orchestrator *InterviewOrchestrator) {
	if s.events == nil {
		return
	}

	events, _ := orchestrator.Subscribe()
	go func() {
		for event := range events {
			ctx, cancel := context.WithTimeout(s.baseCtx, eventPublishTimeout)
			if err := s.events.Publish(ctx, event); err != nil {
				s.logger.Warn().Err(err).Str("session_id", event.SessionID).Msg("failed to publish interview event")
			}
			cancel()
		}
	}()
}

func (s *interviewService) onComplete(sessionID string) {
	s.logger.Info().Str("session_id", sessionID).Msg("interview completed")
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(s.baseCtx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate dashboard cache")
	}
}
