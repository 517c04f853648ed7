package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/internal/repository"
	"github.com/noah-isme/proprep-api/internal/service"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

// fakeInterviewer answers from caller supplied functions and counts every call.
type fakeInterviewer struct {
	nextQuestion func(ctx context.Context, in ai.QuestionInput) (ai.QuestionResult, error)
	score        func(ctx context.Context, in ai.FeedbackInput) (ai.FeedbackResult, error)
	checkFrame   func(ctx context.Context, in ai.ProctoringInput) (ai.ProctoringResult, error)
	summarize    func(ctx context.Context, in ai.SummaryInput) (ai.SummaryResult, error)

	questionCalls atomic.Int32
	feedbackCalls atomic.Int32
	frameCalls    atomic.Int32
	summaryCalls  atomic.Int32

	mu             sync.Mutex
	questionInputs []ai.QuestionInput
	feedbackInputs []ai.FeedbackInput
}

func (f *fakeInterviewer) NextQuestion(ctx context.Context, in ai.QuestionInput) (ai.QuestionResult, error) {
	f.questionCalls.Add(1)
	f.mu.Lock()
	f.questionInputs = append(f.questionInputs, in)
	f.mu.Unlock()
	if f.nextQuestion == nil {
		return ai.QuestionResult{Question: "Tell me more."}, nil
	}
	return f.nextQuestion(ctx, in)
}

func (f *fakeInterviewer) ScoreResponse(ctx context.Context, in ai.FeedbackInput) (ai.FeedbackResult, error) {
	f.feedbackCalls.Add(1)
	f.mu.Lock()
	f.feedbackInputs = append(f.feedbackInputs, in)
	f.mu.Unlock()
	if f.score == nil {
		return ai.FeedbackResult{Feedback: "Solid answer.", Suggestions: "Add a metric.", Score: 70}, nil
	}
	return f.score(ctx, in)
}

func (f *fakeInterviewer) CheckFrame(ctx context.Context, in ai.ProctoringInput) (ai.ProctoringResult, error) {
	f.frameCalls.Add(1)
	if f.checkFrame == nil {
		return ai.ProctoringResult{ViolationType: ai.ViolationNone}, nil
	}
	return f.checkFrame(ctx, in)
}

func (f *fakeInterviewer) Summarize(ctx context.Context, in ai.SummaryInput) (ai.SummaryResult, error) {
	f.summaryCalls.Add(1)
	if f.summarize == nil {
		return ai.SummaryResult{OverallScore: 75, Strengths: "Clear", AreasForImprovement: "Depth", FinalVerdict: "Ready"}, nil
	}
	return f.summarize(ctx, in)
}

func (f *fakeInterviewer) lastQuestionInput() ai.QuestionInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questionInputs[len(f.questionInputs)-1]
}

// scriptedQuestions returns the given questions in order and completes afterwards.
func scriptedQuestions(questions ...string) func(context.Context, ai.QuestionInput) (ai.QuestionResult, error) {
	return func(_ context.Context, in ai.QuestionInput) (ai.QuestionResult, error) {
		asked := len(in.PreviousQuestions)
		if asked < len(questions) {
			return ai.QuestionResult{Question: questions[asked]}, nil
		}
		return ai.QuestionResult{Question: ai.CompletionMessage, IsComplete: true}, nil
	}
}

// countingRepo wraps a session repository and counts updates. The first
// failUpdates updates return errDatabaseDown without reaching storage.
type countingRepo struct {
	repository.InterviewSessionRepository
	updates     atomic.Int32
	failUpdates atomic.Int32
}

var errDatabaseDown = errors.New("db down")

func (r *countingRepo) Update(ctx context.Context, id string, update repository.SessionUpdate) error {
	r.updates.Add(1)
	if r.failUpdates.Add(-1) >= 0 {
		return errDatabaseDown
	}
	return r.InterviewSessionRepository.Update(ctx, id, update)
}

// recordingFinalizer counts Finalize calls without touching storage.
type recordingFinalizer struct {
	calls  atomic.Int32
	mu     sync.Mutex
	inputs []service.FinalizeInput
}

func (f *recordingFinalizer) Finalize(_ context.Context, in service.FinalizeInput) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	return nil
}

func (f *recordingFinalizer) RegenerateReport(context.Context, string) (models.SummaryReport, error) {
	return models.SummaryReport{}, nil
}

func (f *recordingFinalizer) Wait() {}

func (f *recordingFinalizer) last() service.FinalizeInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

func setupSessionDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.InterviewSession{}))
	return db
}

// waitForEvent reads from ch until an event of the given type arrives.
func waitForEvent(t *testing.T, ch <-chan service.Event, eventType service.EventType) service.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-ch:
			require.True(t, ok, "event channel closed before %s", eventType)
			if event.Type == eventType {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}
