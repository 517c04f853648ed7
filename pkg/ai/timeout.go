package ai

import (
	"context"
	"fmt"
	"time"
)

// Timeouts bounds each interviewer operation. A zero value disables the bound.
type Timeouts struct {
	Question   time.Duration
	Feedback   time.Duration
	Proctoring time.Duration
	Summary    time.Duration
}

type timeoutInterviewer struct {
	next     Interviewer
	timeouts Timeouts
}

// WithTimeouts wraps an Interviewer so every call is bounded; an expired deadline surfaces as ErrTimeout.
func WithTimeouts(next Interviewer, timeouts Timeouts) Interviewer {
	return &timeoutInterviewer{next: next, timeouts: timeouts}
}

func (t *timeoutInterviewer) NextQuestion(ctx context.Context, input QuestionInput) (QuestionResult, error) {
	return bounded(ctx, t.timeouts.Question, "next question", func(ctx context.Context) (QuestionResult, error) {
		return t.next.NextQuestion(ctx, input)
	})
}

func (t *timeoutInterviewer) ScoreResponse(ctx context.Context, input FeedbackInput) (FeedbackResult, error) {
	return bounded(ctx, t.timeouts.Feedback, "score response", func(ctx context.Context) (FeedbackResult, error) {
		return t.next.ScoreResponse(ctx, input)
	})
}

func (t *timeoutInterviewer) CheckFrame(ctx context.Context, input ProctoringInput) (ProctoringResult, error) {
	return bounded(ctx, t.timeouts.Proctoring, "check frame", func(ctx context.Context) (ProctoringResult, error) {
		return t.next.CheckFrame(ctx, input)
	})
}

func (t *timeoutInterviewer) Summarize(ctx context.Context, input SummaryInput) (SummaryResult, error) {
	return bounded(ctx, t.timeouts.Summary, "summarize", func(ctx context.Context) (SummaryResult, error) {
		return t.next.Summarize(ctx, input)
	})
}

type outcome[T any] struct {
	value T
	err   error
}

// bounded runs call under a deadline and returns as soon as the deadline passes,
// even if the underlying client ignores cancellation.
func bounded[T any](parent context.Context, limit time.Duration, op string, call func(context.Context) (T, error)) (T, error) {
	if limit <= 0 {
		return call(parent)
	}

	ctx, cancel := context.WithTimeout(parent, limit)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		value, err := call(ctx)
		done <- outcome[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return res.value, normalizeError(op, res.err)
		}
		return res.value, nil
	case <-ctx.Done():
		var zero T
		if parent.Err() != nil {
			return zero, parent.Err()
		}
		return zero, fmt.Errorf("%s exceeded %s: %w", op, limit, ErrTimeout)
	}
}
