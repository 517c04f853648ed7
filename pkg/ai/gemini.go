package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

const providerGemini = "gemini"

// GeminiConfig holds Gemini specific configuration.
type GeminiConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// GeminiInterviewer implements Interviewer on top of the Gemini API.
type GeminiInterviewer struct {
	client    *genai.Client
	model     string
	prompts   *PromptSet
	validator *Validator
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewGeminiInterviewer creates a Gemini backed interviewer.
func NewGeminiInterviewer(ctx context.Context, cfg GeminiConfig) (*GeminiInterviewer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ProviderError{Provider: providerGemini, Code: ErrCodeAPIKey, Message: "failed to create gemini client", Err: err}
	}

	prompts, err := LoadPrompts()
	if err != nil {
		return nil, err
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	return &GeminiInterviewer{
		client:    client,
		model:     cfg.Model,
		prompts:   prompts,
		validator: validator,
		tracer:    otel.Tracer("github.com/noah-isme/proprep-api/pkg/ai/gemini"),
		logger:    cfg.Logger.With().Str("component", "gemini_interviewer").Logger(),
	}, nil
}

// NextQuestion asks Gemini for the next interview question.
func (g *GeminiInterviewer) NextQuestion(ctx context.Context, input QuestionInput) (QuestionResult, error) {
	prompt, err := g.prompts.renderQuestion(input)
	if err != nil {
		return QuestionResult{}, err
	}

	content, err := g.generate(ctx, PromptNextQuestion, prompt, nil)
	if err != nil {
		return QuestionResult{}, err
	}

	return g.validator.decodeQuestion(content)
}

// ScoreResponse asks Gemini to grade one answer.
func (g *GeminiInterviewer) ScoreResponse(ctx context.Context, input FeedbackInput) (FeedbackResult, error) {
	prompt, err := g.prompts.renderFeedback(input)
	if err != nil {
		return FeedbackResult{}, err
	}

	content, err := g.generate(ctx, PromptScoreResponse, prompt, nil)
	if err != nil {
		return FeedbackResult{}, err
	}

	return g.validator.decodeFeedback(content)
}

// CheckFrame sends a webcam still inline with the proctoring prompt.
func (g *GeminiInterviewer) CheckFrame(ctx context.Context, input ProctoringInput) (ProctoringResult, error) {
	mimeType, data, err := DecodeDataURI(input.FrameDataURI)
	if err != nil {
		return ProctoringResult{}, &ProviderError{Provider: providerGemini, Code: ErrCodeInvalidInput, Message: "invalid frame", Err: err}
	}

	prompt, err := g.prompts.renderProctoring()
	if err != nil {
		return ProctoringResult{}, err
	}

	content, err := g.generate(ctx, PromptCheckFrame, prompt, &genai.Blob{MIMEType: mimeType, Data: data})
	if err != nil {
		return ProctoringResult{}, err
	}

	return g.validator.decodeProctoring(content)
}

// Summarize produces the post-interview report.
func (g *GeminiInterviewer) Summarize(ctx context.Context, input SummaryInput) (SummaryResult, error) {
	prompt, err := g.prompts.renderSummary(input)
	if err != nil {
		return SummaryResult{}, err
	}

	content, err := g.generate(ctx, PromptSummarize, prompt, nil)
	if err != nil {
		return SummaryResult{}, err
	}

	return g.validator.decodeSummary(content)
}

func (g *GeminiInterviewer) generate(parent context.Context, operation string, prompt RenderedPrompt, inline *genai.Blob) (string, error) {
	ctx, span := g.tracer.Start(parent, "gemini."+operation, trace.WithAttributes(
		attribute.String("model", g.model),
	))
	defer span.End()

	parts := []*genai.Part{{Text: prompt.User}}
	if inline != nil {
		parts = append(parts, &genai.Part{InlineData: inline})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: prompt.System}}},
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	aiDuration.WithLabelValues(providerGemini, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", g.fail(span, operation, &ProviderError{Provider: providerGemini, Code: ErrCodeServiceDown, Message: "generate content failed", Err: err})
	}
	if result == nil {
		return "", g.fail(span, operation, &ProviderError{Provider: providerGemini, Code: ErrCodeEmpty, Message: "no response generated"})
	}

	text, err := result.Text()
	if err != nil {
		return "", g.fail(span, operation, &ProviderError{Provider: providerGemini, Code: ErrCodeInvalidInput, Message: "failed to extract response text", Err: err})
	}
	if strings.TrimSpace(text) == "" {
		return "", g.fail(span, operation, &ProviderError{Provider: providerGemini, Code: ErrCodeEmpty, Message: "empty response generated"})
	}

	return text, nil
}

func (g *GeminiInterviewer) fail(span trace.Span, operation string, err error) error {
	aiFailures.WithLabelValues(providerGemini, operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.logger.Warn().Err(err).Str("operation", operation).Msg("gemini request failed")
	return normalizeError("gemini "+operation, err)
}

// DecodeDataURI splits a base64 data URI into its MIME type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data uri")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("data uri missing payload")
	}
	if !strings.HasSuffix(header, ";base64") {
		return "", nil, fmt.Errorf("data uri must be base64 encoded")
	}
	mimeType := strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		return "", nil, fmt.Errorf("data uri missing mime type")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri payload: %w", err)
	}
	return mimeType, data, nil
}

// EncodeDataURI builds a base64 data URI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
