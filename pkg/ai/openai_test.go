package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proprep-api/pkg/ai"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func newOpenAIServer(t *testing.T, status int, content string, capture *chatRequest) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}

		payload := map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(t *testing.T, srv *httptest.Server) *ai.OpenAIInterviewer {
	t.Helper()

	interviewer, err := ai.NewOpenAIInterviewer(ai.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return interviewer
}

func TestOpenAINextQuestion(t *testing.T) {
	var captured chatRequest
	srv := newOpenAIServer(t, http.StatusOK, `{"question":"First, please introduce yourself.","isComplete":false}`, &captured)
	interviewer := newTestOpenAI(t, srv)

	result, err := interviewer.NextQuestion(context.Background(), ai.QuestionInput{
		Role:       "Backend Developer",
		Difficulty: ai.DifficultyMedium,
	})
	require.NoError(t, err)
	require.Equal(t, "First, please introduce yourself.", result.Question)
	require.False(t, result.IsComplete)

	require.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	require.Equal(t, "system", captured.Messages[0].Role)
	require.Contains(t, string(captured.Messages[1].Content), "Backend Developer")
}

func TestOpenAIScoreResponseClampsScore(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{"feedback":"Strong answer","suggestions":"Quantify impact","score":112.4}`, nil)
	interviewer := newTestOpenAI(t, srv)

	result, err := interviewer.ScoreResponse(context.Background(), ai.FeedbackInput{
		UserResponse:      "I built a caching layer",
		InterviewQuestion: "Tell me about your most recent project experience.",
		InterviewContext:  "Role: Backend Developer",
	})
	require.NoError(t, err)
	require.Equal(t, 100, result.Score)
	require.Equal(t, "Strong answer", result.Feedback)
}

func TestOpenAICheckFrameSendsImagePart(t *testing.T) {
	var captured chatRequest
	srv := newOpenAIServer(t, http.StatusOK, `{"hasViolation":true,"violationType":"phone_detected","warningMessage":"Please put your phone away."}`, &captured)
	interviewer := newTestOpenAI(t, srv)

	result, err := interviewer.CheckFrame(context.Background(), ai.ProctoringInput{FrameDataURI: "data:image/jpeg;base64,/9j/"})
	require.NoError(t, err)
	require.True(t, result.HasViolation)
	require.Equal(t, ai.ViolationPhoneDetected, result.ViolationType)
	require.Contains(t, string(captured.Messages[1].Content), "image_url")

	_, err = interviewer.CheckFrame(context.Background(), ai.ProctoringInput{FrameDataURI: "not-a-frame"})
	var providerErr *ai.ProviderError
	require.True(t, errors.As(err, &providerErr))
	require.Equal(t, ai.ErrCodeInvalidInput, providerErr.Code)
}

func TestOpenAISummarizeRejectsInvalidOutput(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK, `{"strengths":"clear"}`, nil)
	interviewer := newTestOpenAI(t, srv)

	_, err := interviewer.Summarize(context.Background(), ai.SummaryInput{
		Role:       "Backend Developer",
		Transcript: []ai.TranscriptEntry{{Role: "ai", Content: "Hello"}},
	})
	require.ErrorIs(t, err, ai.ErrInvalidOutput)
}

func TestOpenAIUpstreamErrorIsClassified(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusServiceUnavailable, "", nil)
	interviewer := newTestOpenAI(t, srv)

	_, err := interviewer.NextQuestion(context.Background(), ai.QuestionInput{Role: "QA", Difficulty: ai.DifficultyEasy})
	var providerErr *ai.ProviderError
	require.True(t, errors.As(err, &providerErr))
	require.Equal(t, ai.ErrCodeServiceDown, providerErr.Code)
}

func TestNewOpenAIInterviewerRequiresKey(t *testing.T) {
	_, err := ai.NewOpenAIInterviewer(ai.OpenAIConfig{})
	require.Error(t, err)
}
