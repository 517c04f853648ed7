package ai

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// CompletionMessage is the closing line the interviewer uses once every question has been asked.
const CompletionMessage = "The interview is now complete. Thank you for your time."

// Prompt names, one per interviewer operation.
const (
	PromptNextQuestion  = "next_question"
	PromptScoreResponse = "score_response"
	PromptCheckFrame    = "check_frame"
	PromptSummarize     = "summarize"
)

type promptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type compiledPrompt struct {
	system string
	user   *template.Template
}

// PromptSet holds the parsed prompt templates.
type PromptSet struct {
	prompts map[string]compiledPrompt
}

// RenderedPrompt is a system/user pair ready to send to a model.
type RenderedPrompt struct {
	System string
	User   string
}

// LoadPrompts parses every embedded YAML prompt template.
func LoadPrompts() (*PromptSet, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates directory: %w", err)
	}

	set := &PromptSet{prompts: make(map[string]compiledPrompt, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}

		var raw promptTemplate
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		userTmpl, err := template.New(name).Option("missingkey=error").Parse(raw.User)
		if err != nil {
			return nil, fmt.Errorf("compile template %s: %w", entry.Name(), err)
		}

		set.prompts[name] = compiledPrompt{
			system: strings.TrimSpace(raw.System),
			user:   userTmpl,
		}
	}

	return set, nil
}

// Render executes the named prompt with data.
func (p *PromptSet) Render(name string, data interface{}) (RenderedPrompt, error) {
	prompt, ok := p.prompts[name]
	if !ok {
		return RenderedPrompt{}, fmt.Errorf("prompt %q not found", name)
	}

	var buf bytes.Buffer
	if err := prompt.user.Execute(&buf, data); err != nil {
		return RenderedPrompt{}, fmt.Errorf("render prompt %s: %w", name, err)
	}

	return RenderedPrompt{
		System: prompt.system,
		User:   strings.TrimSpace(buf.String()),
	}, nil
}

type questionPromptData struct {
	QuestionInput
	CompletionMessage string
}

func (p *PromptSet) renderQuestion(input QuestionInput) (RenderedPrompt, error) {
	return p.Render(PromptNextQuestion, questionPromptData{
		QuestionInput:     input,
		CompletionMessage: CompletionMessage,
	})
}

func (p *PromptSet) renderFeedback(input FeedbackInput) (RenderedPrompt, error) {
	return p.Render(PromptScoreResponse, input)
}

func (p *PromptSet) renderProctoring() (RenderedPrompt, error) {
	return p.Render(PromptCheckFrame, struct{}{})
}

func (p *PromptSet) renderSummary(input SummaryInput) (RenderedPrompt, error) {
	return p.Render(PromptSummarize, input)
}
