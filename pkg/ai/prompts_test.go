package ai_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/proprep-api/pkg/ai"
)

func TestLoadPromptsRendersEveryOperation(t *testing.T) {
	prompts, err := ai.LoadPrompts()
	require.NoError(t, err)

	for _, name := range []string{ai.PromptNextQuestion, ai.PromptScoreResponse, ai.PromptCheckFrame, ai.PromptSummarize} {
		rendered, err := prompts.Render(name, map[string]interface{}{
			"Role":              "Backend Developer",
			"Difficulty":        ai.DifficultyMedium,
			"QuestionBank":      "",
			"PreviousQuestions": []string{},
			"CompletionMessage": ai.CompletionMessage,
			"UserResponse":      "I built a cache",
			"InterviewQuestion": "Tell me about a project",
			"InterviewContext":  "Role: Backend Developer",
			"Transcript":        []ai.TranscriptEntry{{Role: "ai", Content: "Hi"}},
			"Feedback":          []ai.FeedbackEntry{{Feedback: "ok", Suggestions: "more", Score: 70}},
		})
		require.NoError(t, err, name)
		require.NotEmpty(t, rendered.System, name)
		require.NotEmpty(t, rendered.User, name)
	}
}

func TestNextQuestionPromptUsesQuestionBankWhenPresent(t *testing.T) {
	prompts, err := ai.LoadPrompts()
	require.NoError(t, err)

	rendered, err := prompts.Render(ai.PromptNextQuestion, map[string]interface{}{
		"Role":              "Backend Developer",
		"Difficulty":        ai.DifficultyHard,
		"QuestionBank":      "Explain consistent hashing.",
		"PreviousQuestions": []string{"First, please introduce yourself."},
		"CompletionMessage": ai.CompletionMessage,
	})
	require.NoError(t, err)
	require.Contains(t, rendered.User, "Explain consistent hashing.")
	require.Contains(t, rendered.User, "- First, please introduce yourself.")
	require.NotContains(t, rendered.User, "Where do you see yourself")
	require.True(t, strings.Contains(rendered.User, ai.CompletionMessage))
}

func TestRenderUnknownPrompt(t *testing.T) {
	prompts, err := ai.LoadPrompts()
	require.NoError(t, err)

	_, err = prompts.Render("missing", nil)
	require.Error(t, err)
}
