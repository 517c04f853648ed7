package service

import (
	"context"
	"strings"
	"sync"
)

const speechBufferSize = 16

// SpeechResult is one recognition event. Only final results are submitted as answers.
type SpeechResult struct {
	Text  string
	Final bool
}

// SpeechInput delivers recognized text from a speech-to-text source.
type SpeechInput interface {
	Start(ctx context.Context) error
	Results() <-chan SpeechResult
	Stop()
}

// ChannelSpeechInput is a SpeechInput fed by recognition results pushed from the client.
type ChannelSpeechInput struct {
	mu      sync.Mutex
	results chan SpeechResult
	stopped bool
}

// NewChannelSpeechInput creates an empty speech input.
func NewChannelSpeechInput() *ChannelSpeechInput {
	return &ChannelSpeechInput{results: make(chan SpeechResult, speechBufferSize)}
}

func (s *ChannelSpeechInput) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSessionClosed
	}
	return nil
}

func (s *ChannelSpeechInput) Results() <-chan SpeechResult {
	return s.results
}

// Push queues a recognition result. It reports false when the input is stopped or the buffer is full.
func (s *ChannelSpeechInput) Push(text string, final bool) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	select {
	case s.results <- SpeechResult{Text: text, Final: final}:
		return true
	default:
		return false
	}
}

func (s *ChannelSpeechInput) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.results)
}
