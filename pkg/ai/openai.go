package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const providerOpenAI = "openai"

// OpenAIConfig defines configuration options for the OpenAI interviewer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIInterviewer implements Interviewer against the OpenAI chat completion API.
type OpenAIInterviewer struct {
	client    *openai.Client
	cfg       OpenAIConfig
	prompts   *PromptSet
	validator *Validator
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewOpenAIInterviewer builds a new interviewer using the provided configuration.
func NewOpenAIInterviewer(cfg OpenAIConfig) (*OpenAIInterviewer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	prompts, err := LoadPrompts()
	if err != nil {
		return nil, err
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIInterviewer{
		client:    openai.NewClientWithConfig(config),
		cfg:       cfg,
		prompts:   prompts,
		validator: validator,
		tracer:    otel.Tracer("github.com/noah-isme/proprep-api/pkg/ai/openai"),
		logger:    cfg.Logger.With().Str("component", "openai_interviewer").Logger(),
	}, nil
}

// NextQuestion asks the model for the next interview question.
func (o *OpenAIInterviewer) NextQuestion(ctx context.Context, input QuestionInput) (QuestionResult, error) {
	prompt, err := o.prompts.renderQuestion(input)
	if err != nil {
		return QuestionResult{}, err
	}

	content, err := o.complete(ctx, PromptNextQuestion, prompt, nil)
	if err != nil {
		return QuestionResult{}, err
	}

	return o.validator.decodeQuestion(content)
}

// ScoreResponse asks the model to grade a single answer.
func (o *OpenAIInterviewer) ScoreResponse(ctx context.Context, input FeedbackInput) (FeedbackResult, error) {
	prompt, err := o.prompts.renderFeedback(input)
	if err != nil {
		return FeedbackResult{}, err
	}

	content, err := o.complete(ctx, PromptScoreResponse, prompt, nil)
	if err != nil {
		return FeedbackResult{}, err
	}

	return o.validator.decodeFeedback(content)
}

// CheckFrame sends a webcam still to a vision-capable model.
func (o *OpenAIInterviewer) CheckFrame(ctx context.Context, input ProctoringInput) (ProctoringResult, error) {
	if !strings.HasPrefix(input.FrameDataURI, "data:") {
		return ProctoringResult{}, &ProviderError{Provider: providerOpenAI, Code: ErrCodeInvalidInput, Message: "frame must be a data uri"}
	}

	prompt, err := o.prompts.renderProctoring()
	if err != nil {
		return ProctoringResult{}, err
	}

	image := &openai.ChatMessageImageURL{URL: input.FrameDataURI, Detail: openai.ImageURLDetailLow}
	content, err := o.complete(ctx, PromptCheckFrame, prompt, image)
	if err != nil {
		return ProctoringResult{}, err
	}

	return o.validator.decodeProctoring(content)
}

// Summarize produces the post-interview report.
func (o *OpenAIInterviewer) Summarize(ctx context.Context, input SummaryInput) (SummaryResult, error) {
	prompt, err := o.prompts.renderSummary(input)
	if err != nil {
		return SummaryResult{}, err
	}

	content, err := o.complete(ctx, PromptSummarize, prompt, nil)
	if err != nil {
		return SummaryResult{}, err
	}

	return o.validator.decodeSummary(content)
}

func (o *OpenAIInterviewer) complete(parent context.Context, operation string, prompt RenderedPrompt, image *openai.ChatMessageImageURL) (string, error) {
	ctx, span := o.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", o.cfg.Model),
	))
	defer span.End()

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User}
	if image != nil {
		user = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.User},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: image},
			},
		}
	}

	request := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			user,
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(providerOpenAI, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", o.fail(span, operation, classifyOpenAIError(err))
	}

	if len(resp.Choices) == 0 {
		return "", o.fail(span, operation, &ProviderError{Provider: providerOpenAI, Code: ErrCodeEmpty, Message: "no choices returned"})
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", o.fail(span, operation, &ProviderError{Provider: providerOpenAI, Code: ErrCodeEmpty, Message: "empty completion"})
	}

	return content, nil
}

func (o *OpenAIInterviewer) fail(span trace.Span, operation string, err error) error {
	aiFailures.WithLabelValues(providerOpenAI, operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger.Warn().Err(err).Str("operation", operation).Msg("openai request failed")
	return normalizeError("openai "+operation, err)
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := ErrCodeServiceDown
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			code = ErrCodeAPIKey
		case http.StatusTooManyRequests:
			code = ErrCodeRateLimit
		case http.StatusBadRequest:
			code = ErrCodeInvalidInput
		}
	}

	return &ProviderError{Provider: providerOpenAI, Code: code, Message: "chat completion failed", Err: err}
}
