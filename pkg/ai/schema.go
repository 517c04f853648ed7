package ai

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks model output against the embedded JSON Schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas directory: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := schemaFS.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if err := compiler.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		names = append(names, name)
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		schema, err := compiler.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}

	return v, nil
}

// Decode validates content against the named schema and unmarshals it into out.
func (v *Validator) Decode(name, content string, out interface{}) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("schema %q not found", name)
	}

	body := stripCodeFence(content)
	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidOutput, name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidOutput, name, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidOutput, name, err)
	}
	return nil
}

func schemaURL(name string) string {
	return "mem://schemas/" + name + ".json"
}

// stripCodeFence removes a surrounding markdown fence some models add around JSON.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

type questionPayload struct {
	Question   string `json:"question"`
	IsComplete bool   `json:"isComplete"`
}

type feedbackPayload struct {
	Feedback    string  `json:"feedback"`
	Suggestions string  `json:"suggestions"`
	Score       float64 `json:"score"`
}

type summaryPayload struct {
	OverallScore        float64 `json:"overallScore"`
	Strengths           string  `json:"strengths"`
	AreasForImprovement string  `json:"areasForImprovement"`
	FinalVerdict        string  `json:"finalVerdict"`
}

func (v *Validator) decodeQuestion(content string) (QuestionResult, error) {
	var payload questionPayload
	if err := v.Decode(PromptNextQuestion, content, &payload); err != nil {
		return QuestionResult{}, err
	}
	return QuestionResult{
		Question:   strings.TrimSpace(payload.Question),
		IsComplete: payload.IsComplete,
	}, nil
}

func (v *Validator) decodeFeedback(content string) (FeedbackResult, error) {
	var payload feedbackPayload
	if err := v.Decode(PromptScoreResponse, content, &payload); err != nil {
		return FeedbackResult{}, err
	}
	return FeedbackResult{
		Feedback:    payload.Feedback,
		Suggestions: payload.Suggestions,
		Score:       ClampScore(payload.Score),
	}, nil
}

func (v *Validator) decodeProctoring(content string) (ProctoringResult, error) {
	var payload ProctoringResult
	if err := v.Decode(PromptCheckFrame, content, &payload); err != nil {
		return ProctoringResult{}, err
	}
	if !payload.HasViolation {
		payload.ViolationType = ViolationNone
	}
	return payload, nil
}

func (v *Validator) decodeSummary(content string) (SummaryResult, error) {
	var payload summaryPayload
	if err := v.Decode(PromptSummarize, content, &payload); err != nil {
		return SummaryResult{}, err
	}
	return SummaryResult{
		OverallScore:        ClampScore(payload.OverallScore),
		Strengths:           payload.Strengths,
		AreasForImprovement: payload.AreasForImprovement,
		FinalVerdict:        payload.FinalVerdict,
	}, nil
}

// ClampScore rounds a score and bounds it to [0,100]. Non-finite values map to 0.
func ClampScore(score float64) int {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	rounded := math.Round(score)
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return int(rounded)
}
