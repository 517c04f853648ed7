package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/internal/observability"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

const subscriberBufferSize = 64

// OrchestratorConfig wires an orchestrator to its collaborators.
type OrchestratorConfig struct {
	SessionID          string
	Interviewer        ai.Interviewer
	Finalizer          SessionFinalizer
	Validator          *validator.Validate
	Evidence           EvidenceArchiver
	ProctoringInterval time.Duration
	Clock              func() time.Time
	// OnComplete runs after the completed interview has been handed to the finalizer.
	OnComplete func(sessionID string)
	Logger     zerolog.Logger
}

// InterviewOrchestrator drives a single interview through its turns. It owns the
// in-memory transcript and feedback until the session is finalized.
type InterviewOrchestrator struct {
	cfg    OrchestratorConfig
	logger zerolog.Logger
	tracer trace.Tracer

	mu                sync.Mutex
	phase             Phase
	settings          InterviewSettings
	transcript        []models.Message
	feedback          []models.Feedback
	currentFeedback   *models.Feedback
	lastError         string
	proctoringEnabled bool
	startedAt         time.Time
	lastActivity      time.Time
	turnInFlight      bool
	finalizeRequested bool
	saveFailed        bool
	closed            bool
	sampler           *ProctoringSampler
	subscribers       map[int]chan Event
	nextSubscriber    int
}

// NewInterviewOrchestrator creates an idle orchestrator.
func NewInterviewOrchestrator(cfg OrchestratorConfig) *InterviewOrchestrator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New(validator.WithRequiredStructEnabled())
	}

	return &InterviewOrchestrator{
		cfg: cfg,
		logger: cfg.Logger.With().
			Str("component", "interview_orchestrator").
			Str("session_id", cfg.SessionID).
			Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/proprep-api/internal/service/interview"),
		phase:        PhaseIdle,
		lastActivity: cfg.Clock(),
		subscribers:  make(map[int]chan Event),
	}
}

// StartInterview validates the settings and asks for the first question. On
// failure the phase returns to idle so the caller can start again.
func (o *InterviewOrchestrator) StartInterview(ctx context.Context, settings InterviewSettings) error {
	settings.Role = strings.TrimSpace(settings.Role)
	settings.QuestionBank = strings.TrimSpace(settings.QuestionBank)
	if err := o.cfg.Validator.Struct(settings); err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if o.phase != PhaseIdle || o.turnInFlight {
		o.mu.Unlock()
		return ErrInterviewStarted
	}
	o.settings = settings
	o.phase = PhaseLoading
	o.lastError = ""
	o.startedAt = o.cfg.Clock()
	o.turnInFlight = true
	o.emitStateLocked()
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "interview.start", trace.WithAttributes(
		attribute.String("session_id", o.cfg.SessionID),
		attribute.String("interview.role", settings.Role),
	))
	defer span.End()

	result, err := o.cfg.Interviewer.NextQuestion(ctx, ai.QuestionInput{
		Role:              settings.Role,
		Difficulty:        settings.Difficulty,
		QuestionBank:      settings.QuestionBank,
		PreviousQuestions: []string{},
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	o.turnInFlight = false

	if o.closed {
		o.logger.Debug().Msg("discarding first question for closed session")
		return ErrSessionClosed
	}

	if err != nil {
		span.RecordError(err)
		o.phase = PhaseIdle
		o.failLocked("Failed to start the interview", err)
		o.emitStateLocked()
		return fmt.Errorf("start interview: %w", err)
	}

	o.appendLocked(models.MessageRoleAI, result.Question)
	o.phase = PhaseAwaitingResponse
	o.emitStateLocked()
	return nil
}

// SubmitResponse records the candidate's answer and runs feedback scoring and
// next-question generation concurrently. A feedback failure does not stop the
// turn; a question failure leaves the interview in the thinking phase until
// RetryNextQuestion succeeds.
func (o *InterviewOrchestrator) SubmitResponse(ctx context.Context, text string) error {
	answer := strings.TrimSpace(text)
	if answer == "" {
		return ErrEmptyResponse
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if o.phase != PhaseAwaitingResponse || o.turnInFlight {
		o.mu.Unlock()
		return ErrNotAwaitingResponse
	}
	question, ok := o.lastQuestionLocked()
	if !ok {
		o.mu.Unlock()
		return ErrNoPendingQuestion
	}

	o.currentFeedback = nil
	o.lastError = ""
	userMessage := o.appendLocked(models.MessageRoleUser, answer)
	previous := o.questionsLocked()
	settings := o.settings
	o.phase = PhaseThinking
	o.turnInFlight = true
	o.emitStateLocked()
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "interview.turn", trace.WithAttributes(
		attribute.String("session_id", o.cfg.SessionID),
		attribute.Int("interview.turn", len(previous)),
	))
	defer span.End()

	var (
		feedback    ai.FeedbackResult
		feedbackErr error
		next        ai.QuestionResult
		questionErr error
		group       errgroup.Group
	)

	group.Go(func() error {
		feedback, feedbackErr = o.cfg.Interviewer.ScoreResponse(ctx, ai.FeedbackInput{
			UserResponse:      answer,
			InterviewQuestion: question,
			InterviewContext:  "Role: " + settings.Role,
		})
		return nil
	})
	group.Go(func() error {
		next, questionErr = o.cfg.Interviewer.NextQuestion(ctx, ai.QuestionInput{
			Role:              settings.Role,
			Difficulty:        settings.Difficulty,
			QuestionBank:      settings.QuestionBank,
			PreviousQuestions: previous,
		})
		return nil
	})
	_ = group.Wait()

	o.mu.Lock()
	o.turnInFlight = false

	if o.closed {
		o.mu.Unlock()
		o.logger.Debug().Msg("discarding turn results for closed session")
		return ErrSessionClosed
	}

	if feedbackErr != nil {
		span.RecordError(feedbackErr)
		observability.InterviewTurns().WithLabelValues("feedback_failed").Inc()
		o.failLocked("Failed to get feedback", feedbackErr)
	} else {
		item := models.Feedback{
			MessageID:   userMessage.ID,
			Feedback:    feedback.Feedback,
			Suggestions: feedback.Suggestions,
			Score:       feedback.Score,
		}
		o.feedback = append(o.feedback, item)
		current := item
		o.currentFeedback = &current
	}

	if questionErr != nil {
		span.RecordError(questionErr)
		observability.InterviewTurns().WithLabelValues("question_failed").Inc()
		o.failLocked("Failed to get the next question", questionErr)
		o.emitStateLocked()
		o.mu.Unlock()
		return fmt.Errorf("next question: %w", questionErr)
	}

	observability.InterviewTurns().WithLabelValues("ok").Inc()
	finalize := o.applyQuestionLocked(next)
	o.mu.Unlock()

	if finalize {
		return o.finalize(ctx)
	}
	return nil
}

// RetryNextQuestion re-issues the next-question request after it failed. For a
// completed interview whose save failed it runs finalization again.
func (o *InterviewOrchestrator) RetryNextQuestion(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if o.phase == PhaseComplete && o.saveFailed && !o.turnInFlight {
		o.saveFailed = false
		o.turnInFlight = true
		o.lastError = ""
		o.emitStateLocked()
		o.mu.Unlock()

		err := o.finalize(ctx)

		o.mu.Lock()
		o.turnInFlight = false
		o.mu.Unlock()
		return err
	}
	if o.phase != PhaseThinking || o.turnInFlight {
		o.mu.Unlock()
		return ErrNothingToRetry
	}
	previous := o.questionsLocked()
	settings := o.settings
	o.turnInFlight = true
	o.lastError = ""
	o.emitStateLocked()
	o.mu.Unlock()

	next, err := o.cfg.Interviewer.NextQuestion(ctx, ai.QuestionInput{
		Role:              settings.Role,
		Difficulty:        settings.Difficulty,
		QuestionBank:      settings.QuestionBank,
		PreviousQuestions: previous,
	})

	o.mu.Lock()
	o.turnInFlight = false
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if err != nil {
		o.failLocked("Failed to get the next question", err)
		o.emitStateLocked()
		o.mu.Unlock()
		return fmt.Errorf("retry next question: %w", err)
	}

	finalize := o.applyQuestionLocked(next)
	o.mu.Unlock()

	if finalize {
		return o.finalize(ctx)
	}
	return nil
}

// EnableProctoring attaches a frame source and starts the sampler. ctx bounds
// the sampler's lifetime and should outlive individual requests.
func (o *InterviewOrchestrator) EnableProctoring(ctx context.Context, source VideoFrameSource) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrSessionClosed
	}
	if o.sampler != nil {
		o.mu.Unlock()
		return nil
	}

	sampler := NewProctoringSampler(ProctoringSamplerConfig{
		SessionID:   o.cfg.SessionID,
		Interval:    o.cfg.ProctoringInterval,
		Interviewer: o.cfg.Interviewer,
		Source:      source,
		Evidence:    o.cfg.Evidence,
		OnWarning:   o.proctoringWarning,
		OnDenied:    o.proctoringDenied,
		Logger:      o.cfg.Logger,
	})
	o.sampler = sampler
	o.proctoringEnabled = true
	o.mu.Unlock()

	return sampler.Start(ctx)
}

// ReportCameraDenied disables proctoring after the candidate refused camera access.
func (o *InterviewOrchestrator) ReportCameraDenied() {
	o.mu.Lock()
	sampler := o.sampler
	o.mu.Unlock()

	if sampler != nil {
		sampler.Deny()
		return
	}
	o.proctoringDenied()
}

// ListenForSpeech submits every final recognition result as an answer until the
// input closes or ctx is cancelled. Results arriving outside the
// awaiting_response phase are dropped.
func (o *InterviewOrchestrator) ListenForSpeech(ctx context.Context, input SpeechInput) error {
	if err := input.Start(ctx); err != nil {
		return err
	}
	defer input.Stop()

	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-input.Results():
			if !ok {
				return nil
			}
			if !result.Final {
				continue
			}

			pending.Add(1)
			go func(text string) {
				defer pending.Done()
				if err := o.SubmitResponse(ctx, text); err != nil {
					o.logger.Debug().Err(err).Msg("speech result not submitted")
				}
			}(result.Text)
		}
	}
}

// Subscribe registers a listener for state events. The returned function unsubscribes.
func (o *InterviewOrchestrator) Subscribe() (<-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	if o.closed {
		close(ch)
		return ch, func() {}
	}

	id := o.nextSubscriber
	o.nextSubscriber++
	o.subscribers[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(sub)
		}
	}
}

// Snapshot returns a copy of the observable state.
func (o *InterviewOrchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := Snapshot{
		SessionID:         o.cfg.SessionID,
		Phase:             o.phase,
		Settings:          o.settings,
		Transcript:        append([]models.Message(nil), o.transcript...),
		Feedback:          append([]models.Feedback(nil), o.feedback...),
		LastError:         o.lastError,
		ProctoringEnabled: o.proctoringEnabled,
		StartedAt:         o.startedAt,
		SaveFailed:        o.saveFailed,
	}
	if o.currentFeedback != nil {
		current := *o.currentFeedback
		snapshot.CurrentFeedback = &current
	}
	return snapshot
}

// Settings returns the interview configuration.
func (o *InterviewOrchestrator) Settings() InterviewSettings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// LastActivity reports when the state last changed.
func (o *InterviewOrchestrator) LastActivity() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActivity
}

// Close ends the live view. In-flight results are discarded and subscribers are closed.
func (o *InterviewOrchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sampler := o.sampler
	for id, ch := range o.subscribers {
		delete(o.subscribers, id)
		close(ch)
	}
	o.mu.Unlock()

	if sampler != nil {
		sampler.Stop()
	}
}

func (o *InterviewOrchestrator) applyQuestionLocked(next ai.QuestionResult) bool {
	if !next.IsComplete {
		o.appendLocked(models.MessageRoleAI, next.Question)
		o.phase = PhaseAwaitingResponse
		o.emitStateLocked()
		return false
	}

	closing := strings.TrimSpace(next.Question)
	if closing == "" {
		closing = ai.CompletionMessage
	}
	o.appendLocked(models.MessageRoleAI, closing)
	o.phase = PhaseComplete
	o.emitStateLocked()
	o.emitLocked(Event{Type: EventCompleted})

	if o.finalizeRequested {
		return false
	}
	o.finalizeRequested = true
	return true
}

func (o *InterviewOrchestrator) finalize(ctx context.Context) error {
	o.mu.Lock()
	input := FinalizeInput{
		SessionID:  o.cfg.SessionID,
		Role:       o.settings.Role,
		StartedAt:  o.startedAt,
		Transcript: append([]models.Message(nil), o.transcript...),
		Feedback:   append([]models.Feedback(nil), o.feedback...),
		OnReport:   o.reportFinished,
	}
	sampler := o.sampler
	o.mu.Unlock()

	if sampler != nil {
		sampler.Stop()
	}

	if o.cfg.Finalizer != nil {
		err := o.cfg.Finalizer.Finalize(ctx, input)
		switch {
		case errors.Is(err, ErrAlreadyFinalized):
			o.logger.Debug().Msg("session already finalized")
			return nil
		case err != nil:
			o.mu.Lock()
			o.saveFailed = true
			o.failLocked("Failed to save the interview", err)
			o.mu.Unlock()
			return fmt.Errorf("finalize: %w", err)
		}
	}

	observability.InterviewsCompleted().Inc()
	if o.cfg.OnComplete != nil {
		o.cfg.OnComplete(o.cfg.SessionID)
	}
	return nil
}

func (o *InterviewOrchestrator) reportFinished(report *models.SummaryReport, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.emitLocked(Event{Type: EventReportFailed, Message: "Failed to generate the summary report: " + err.Error()})
		return
	}
	o.emitLocked(Event{Type: EventReportReady, Report: report})
}

func (o *InterviewOrchestrator) proctoringWarning(result ai.ProctoringResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	warning := result
	o.emitLocked(Event{Type: EventProctoringWarning, Message: result.WarningMessage, Proctoring: &warning})
}

func (o *InterviewOrchestrator) proctoringDenied() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.proctoringEnabled = false
	o.emitLocked(Event{Type: EventProctoringOff, Message: "Camera access was denied. Proctoring is disabled for this interview."})
}

func (o *InterviewOrchestrator) appendLocked(role, content string) models.Message {
	message := models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: o.cfg.Clock(),
	}
	o.transcript = append(o.transcript, message)
	return message
}

func (o *InterviewOrchestrator) lastQuestionLocked() (string, bool) {
	for i := len(o.transcript) - 1; i >= 0; i-- {
		if o.transcript[i].Role == models.MessageRoleAI {
			return o.transcript[i].Content, true
		}
	}
	return "", false
}

func (o *InterviewOrchestrator) questionsLocked() []string {
	questions := make([]string, 0, len(o.transcript))
	for _, message := range o.transcript {
		if message.Role == models.MessageRoleAI {
			questions = append(questions, message.Content)
		}
	}
	return questions
}

func (o *InterviewOrchestrator) failLocked(prefix string, err error) {
	message := fmt.Sprintf("%s: %v", prefix, err)
	if errors.Is(err, ai.ErrTimeout) {
		message = prefix + ": the interviewer took too long to respond"
	}
	o.lastError = message
	o.logger.Warn().Err(err).Msg(prefix)
	o.emitLocked(Event{Type: EventError, Message: message})
}

func (o *InterviewOrchestrator) emitStateLocked() {
	o.emitLocked(Event{Type: EventState, Phase: o.phase.String()})
}

func (o *InterviewOrchestrator) emitLocked(event Event) {
	event.SessionID = o.cfg.SessionID
	event.At = o.cfg.Clock()
	o.lastActivity = event.At

	for _, ch := range o.subscribers {
		select {
		case ch <- event:
		default:
			o.logger.Debug().Str("event", string(event.Type)).Msg("dropping event for slow subscriber")
		}
	}
}
