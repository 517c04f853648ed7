package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/internal/observability"
	"github.com/noah-isme/proprep-api/internal/repository"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

const (
	defaultFinalizeTimeout = 4 * time.Minute
	defaultTranscriptLimit = 2000
	defaultFeedbackLimit   = 1000
)

var (
	// ErrAlreadyFinalized is returned when a session is finalized a second time.
	ErrAlreadyFinalized = errors.New("interview session already finalized")
	// ErrNoValidTranscript is returned when no transcript entry survives cleaning.
	ErrNoValidTranscript = errors.New("no valid transcript entries to summarize")
	// ErrReportExists is returned when a report is requested for a session that already has one.
	ErrReportExists = errors.New("summary report already generated")
)

// FinalizeInput is the in-memory interview handed over at completion.
type FinalizeInput struct {
	SessionID  string
	Role       string
	StartedAt  time.Time
	Transcript []models.Message
	Feedback   []models.Feedback
	// OnReport is called once the background report pipeline finishes.
	OnReport func(report *models.SummaryReport, err error)
}

// FinalizerConfig tunes the finalizer.
type FinalizerConfig struct {
	Timeout         time.Duration
	TranscriptLimit int
	FeedbackLimit   int
	Clock           func() time.Time
}

// SessionFinalizer persists completed interviews and generates their reports.
type SessionFinalizer interface {
	Finalize(ctx context.Context, input FinalizeInput) error
	RegenerateReport(ctx context.Context, sessionID string) (models.SummaryReport, error)
	Wait()
}

type sessionFinalizer struct {
	repo        repository.InterviewSessionRepository
	interviewer ai.Interviewer
	cfg         FinalizerConfig
	logger      zerolog.Logger
	tracer      trace.Tracer

	mu        sync.Mutex
	finalized map[string]struct{}
	reports   sync.WaitGroup
}

// NewSessionFinalizer constructs the finalizer.
func NewSessionFinalizer(repo repository.InterviewSessionRepository, interviewer ai.Interviewer, cfg FinalizerConfig, logger zerolog.Logger) SessionFinalizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFinalizeTimeout
	}
	if cfg.TranscriptLimit <= 0 {
		cfg.TranscriptLimit = defaultTranscriptLimit
	}
	if cfg.FeedbackLimit <= 0 {
		cfg.FeedbackLimit = defaultFeedbackLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &sessionFinalizer{
		repo:        repo,
		interviewer: interviewer,
		cfg:         cfg,
		logger:      logger.With().Str("component", "session_finalizer").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/proprep-api/internal/service/finalizer"),
		finalized:   make(map[string]struct{}),
	}
}

// Finalize persists score, duration, transcript and feedback in a single update and
// then generates the summary report in the background. A second call for the same
// session returns ErrAlreadyFinalized without side effects. A failed save releases
// the session so the caller can finalize it again.
func (f *sessionFinalizer) Finalize(parent context.Context, input FinalizeInput) error {
	f.mu.Lock()
	if _, done := f.finalized[input.SessionID]; done {
		f.mu.Unlock()
		return ErrAlreadyFinalized
	}
	f.finalized[input.SessionID] = struct{}{}
	f.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), f.cfg.Timeout)

	spanCtx, span := f.tracer.Start(ctx, "interview.finalize", trace.WithAttributes(
		attribute.String("session_id", input.SessionID),
	))

	score := AverageScore(input.Feedback)
	duration := strconv.Itoa(DurationMinutes(input.StartedAt, f.cfg.Clock()))
	status := models.SessionStatusCompleted
	transcript := input.Transcript
	feedback := input.Feedback

	err := f.repo.Update(spanCtx, input.SessionID, repository.SessionUpdate{
		Score:      &score,
		Duration:   &duration,
		Feedback:   &feedback,
		Transcript: &transcript,
		Status:     &status,
	})
	observability.FinalizeDuration().Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		cancel()
		f.mu.Lock()
		delete(f.finalized, input.SessionID)
		f.mu.Unlock()
		f.logger.Error().Err(err).Str("session_id", input.SessionID).Msg("failed to persist finalized session")
		return fmt.Errorf("persist session: %w", err)
	}
	span.End()

	f.logger.Info().
		Str("session_id", input.SessionID).
		Int("score", score).
		Str("duration", duration).
		Msg("interview session finalized")

	f.reports.Add(1)
	go func() {
		defer f.reports.Done()
		defer cancel()

		report, err := f.generateReport(ctx, input.SessionID, input.Role, input.Transcript, input.Feedback)
		if err != nil {
			f.logger.Warn().Err(err).Str("session_id", input.SessionID).Msg("summary report generation failed")
		}
		if input.OnReport != nil {
			input.OnReport(report, err)
		}
	}()

	return nil
}

// RegenerateReport builds the report for a stored session that has none.
func (f *sessionFinalizer) RegenerateReport(parent context.Context, sessionID string) (models.SummaryReport, error) {
	session, err := f.repo.Get(parent, sessionID)
	if err != nil {
		return models.SummaryReport{}, err
	}
	if session.Report() != nil {
		return models.SummaryReport{}, ErrReportExists
	}

	ctx, cancel := context.WithTimeout(parent, f.cfg.Timeout)
	defer cancel()

	report, err := f.generateReport(ctx, session.ID, session.Role, session.TranscriptList(), session.FeedbackList())
	if err != nil {
		return models.SummaryReport{}, err
	}
	return *report, nil
}

// Wait blocks until every background report pipeline has finished.
func (f *sessionFinalizer) Wait() {
	f.reports.Wait()
}

func (f *sessionFinalizer) generateReport(ctx context.Context, sessionID, role string, transcript []models.Message, feedback []models.Feedback) (*models.SummaryReport, error) {
	ctx, span := f.tracer.Start(ctx, "interview.report", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	cleanTranscript := CleanTranscript(transcript, f.cfg.TranscriptLimit)
	if len(cleanTranscript) == 0 {
		observability.ReportsGenerated().WithLabelValues("skipped").Inc()
		return nil, ErrNoValidTranscript
	}
	cleanFeedback := CleanFeedback(feedback, f.cfg.FeedbackLimit)

	result, err := f.interviewer.Summarize(ctx, ai.SummaryInput{
		Transcript: cleanTranscript,
		Feedback:   cleanFeedback,
		Role:       role,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ai.ErrTimeout) {
			err = fmt.Errorf("%w: %w", ai.ErrTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.ReportsGenerated().WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("summarize interview: %w", err)
	}

	report := models.SummaryReport{
		OverallScore:        ai.ClampScore(float64(result.OverallScore)),
		Strengths:           result.Strengths,
		AreasForImprovement: result.AreasForImprovement,
		FinalVerdict:        result.FinalVerdict,
	}

	if err := f.repo.Update(ctx, sessionID, repository.SessionUpdate{SummaryReport: &report}); err != nil {
		span.RecordError(err)
		observability.ReportsGenerated().WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("persist summary report: %w", err)
	}

	observability.ReportsGenerated().WithLabelValues("generated").Inc()
	return &report, nil
}

// AverageScore is the rounded mean of the feedback scores, 0 when there is none.
func AverageScore(feedback []models.Feedback) int {
	if len(feedback) == 0 {
		return 0
	}
	total := 0
	for _, item := range feedback {
		total += item.Score
	}
	return int(math.Round(float64(total) / float64(len(feedback))))
}

// DurationMinutes rounds the elapsed time to whole minutes.
func DurationMinutes(start, end time.Time) int {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return int(math.Round(float64(end.Sub(start).Milliseconds()) / 60000))
}

// CleanTranscript drops entries without a role or content and truncates long content.
func CleanTranscript(transcript []models.Message, limit int) []ai.TranscriptEntry {
	out := make([]ai.TranscriptEntry, 0, len(transcript))
	for _, message := range transcript {
		role := strings.TrimSpace(message.Role)
		content := strings.TrimSpace(message.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, ai.TranscriptEntry{Role: role, Content: truncate(content, limit)})
	}
	return out
}

// CleanFeedback drops entries missing feedback or suggestions, clamps scores to
// [0,100] and truncates long text.
func CleanFeedback(feedback []models.Feedback, limit int) []ai.FeedbackEntry {
	out := make([]ai.FeedbackEntry, 0, len(feedback))
	for _, item := range feedback {
		text := strings.TrimSpace(item.Feedback)
		suggestions := strings.TrimSpace(item.Suggestions)
		if text == "" || suggestions == "" {
			continue
		}
		out = append(out, ai.FeedbackEntry{
			Feedback:    truncate(text, limit),
			Suggestions: truncate(suggestions, limit),
			Score:       ai.ClampScore(float64(item.Score)),
		})
	}
	return out
}

func truncate(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
