package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/proprep-api/pkg/ai"
)

// ErrCameraPermissionDenied is reported when the candidate refuses camera access.
var ErrCameraPermissionDenied = errors.New("camera permission denied")

// ErrNoFrame is returned by Capture before any frame arrived.
var ErrNoFrame = errors.New("no frame captured yet")

// Frame is a single encoded webcam still.
type Frame struct {
	Data     []byte
	MIMEType string
}

// VideoFrameSource provides webcam stills to the proctoring sampler.
type VideoFrameSource interface {
	Start(ctx context.Context) error
	Ready() bool
	Capture(ctx context.Context) (Frame, error)
}

// FrameBuffer keeps the most recent frame pushed by the client.
type FrameBuffer struct {
	mu     sync.RWMutex
	latest *Frame
	denied bool
}

// NewFrameBuffer creates an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Start fails with ErrCameraPermissionDenied if the client reported a refusal.
func (b *FrameBuffer) Start(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.denied {
		return ErrCameraPermissionDenied
	}
	return nil
}

func (b *FrameBuffer) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.denied && b.latest != nil
}

func (b *FrameBuffer) Capture(_ context.Context) (Frame, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.denied {
		return Frame{}, ErrCameraPermissionDenied
	}
	if b.latest == nil {
		return Frame{}, ErrNoFrame
	}
	data := make([]byte, len(b.latest.Data))
	copy(data, b.latest.Data)
	return Frame{Data: data, MIMEType: b.latest.MIMEType}, nil
}

// Push replaces the latest frame. The MIME type is sniffed when not supplied.
func (b *FrameBuffer) Push(frame Frame) error {
	if len(frame.Data) == 0 {
		return ErrInvalidFrame
	}
	if frame.MIMEType == "" {
		frame.MIMEType = mimetype.Detect(frame.Data).String()
	}
	if !strings.HasPrefix(frame.MIMEType, "image/") {
		return ErrInvalidFrame
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denied {
		return ErrCameraPermissionDenied
	}
	b.latest = &frame
	return nil
}

// Deny records that camera access was refused and drops any buffered frame.
func (b *FrameBuffer) Deny() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.denied = true
	b.latest = nil
}

// ParseFrame decodes a frame sent either as a data URI or as bare base64.
func ParseFrame(payload string) (Frame, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Frame{}, ErrInvalidFrame
	}
	if !strings.HasPrefix(payload, "data:") {
		payload = "data:application/octet-stream;base64," + payload
	}

	mimeType, data, err := ai.DecodeDataURI(payload)
	if err != nil {
		return Frame{}, errors.Join(ErrInvalidFrame, err)
	}
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	return Frame{Data: data, MIMEType: mimeType}, nil
}
