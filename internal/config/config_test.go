package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PROPREP_JWT_SECRET", "secret")
	t.Setenv("PROPREP_AUTH_DEMO_PASSWORD", "demo-pass")
	t.Setenv("PROPREP_OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "openai", cfg.AIProvider)
	require.Equal(t, 30*time.Second, cfg.QuestionTimeout)
	require.Equal(t, 2*time.Minute, cfg.ReportTimeout)
	require.Equal(t, 4*time.Minute, cfg.FinalizeTimeout)
	require.Equal(t, 5*time.Second, cfg.ProctoringInterval)
	require.Equal(t, 2*time.Hour, cfg.SessionIdleTTL)
	require.Equal(t, 2000, cfg.TranscriptLimit)
	require.Equal(t, 1000, cfg.FeedbackLimit)
	require.Equal(t, "proprep", cfg.EventsChannel)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PROPREP_JWT_SECRET", "secret")
	t.Setenv("PROPREP_AUTH_DEMO_PASSWORD", "demo-pass")
	t.Setenv("PROPREP_AI_PROVIDER", "Gemini")
	t.Setenv("PROPREP_GEMINI_API_KEY", "g-key")
	t.Setenv("PROPREP_APP_PORT", ":9090")
	t.Setenv("PROPREP_PROCTORING_INTERVAL", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gemini", cfg.AIProvider)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 2*time.Second, cfg.ProctoringInterval)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("PROPREP_JWT_SECRET", "secret")
	t.Setenv("PROPREP_AUTH_DEMO_PASSWORD", "demo-pass")
	t.Setenv("PROPREP_AI_PROVIDER", "openai")
	t.Setenv("PROPREP_OPENAI_API_KEY", "")

	_, err := Load()
	require.ErrorContains(t, err, "openai api key")

	t.Setenv("PROPREP_OPENAI_API_KEY", "sk-test")
	t.Setenv("PROPREP_AI_QUESTION_TIMEOUT", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "ai.question_timeout")
}
