package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/noah-isme/proprep-api/internal/observability"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

const (
	defaultProctoringInterval = 5 * time.Second
	evidenceUploadTimeout     = 30 * time.Second
	maxChecksInFlight         = 3
)

// EvidenceArchiver stores frames that were flagged as violations.
type EvidenceArchiver interface {
	ArchiveFrame(ctx context.Context, sessionID, violation string, frame []byte) (string, error)
}

// ProctoringSamplerConfig wires a sampler to its frame source and callbacks.
type ProctoringSamplerConfig struct {
	SessionID   string
	Interval    time.Duration
	Interviewer ai.Interviewer
	Source      VideoFrameSource
	Evidence    EvidenceArchiver
	OnWarning   func(ai.ProctoringResult)
	OnDenied    func()
	Logger      zerolog.Logger
}

// ProctoringSampler periodically checks webcam frames. It is best effort and never
// feeds failures back into the interview turn machine.
type ProctoringSampler struct {
	cfg        ProctoringSamplerConfig
	logger     zerolog.Logger
	mu         sync.Mutex
	cancel     context.CancelFunc
	deniedOnce sync.Once
	inFlight   *semaphore.Weighted
}

// NewProctoringSampler builds a stopped sampler.
func NewProctoringSampler(cfg ProctoringSamplerConfig) *ProctoringSampler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProctoringInterval
	}

	return &ProctoringSampler{
		cfg: cfg,
		logger: cfg.Logger.With().
			Str("component", "proctoring_sampler").
			Str("session_id", cfg.SessionID).
			Logger(),
		inFlight: semaphore.NewWeighted(maxChecksInFlight),
	}
}

// Start opens the frame source and begins sampling. A permission refusal is
// reported once through OnDenied and returned.
func (p *ProctoringSampler) Start(parent context.Context) error {
	if err := p.cfg.Source.Start(parent); err != nil {
		if errors.Is(err, ErrCameraPermissionDenied) {
			p.Deny()
		}
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	go p.loop(ctx)

	return nil
}

// Stop cancels sampling without waiting for in-flight checks. Each tick runs its
// check on its own goroutine so a slow model call never delays the next tick.
func (p *ProctoringSampler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Deny disables the sampler for good and notifies the owner exactly once.
func (p *ProctoringSampler) Deny() {
	p.deniedOnce.Do(func() {
		p.Stop()
		observability.ProctoringChecks().WithLabelValues("denied").Inc()
		p.logger.Info().Msg("camera permission denied, proctoring disabled")
		if p.cfg.OnDenied != nil {
			p.cfg.OnDenied()
		}
	})
}

func (p *ProctoringSampler) loop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.inFlight.TryAcquire(1) {
				observability.ProctoringChecks().WithLabelValues("skipped").Inc()
				p.logger.Debug().Msg("too many proctoring checks in flight, skipping tick")
				continue
			}
			go func() {
				defer p.inFlight.Release(1)
				p.tick(ctx)
			}()
		}
	}
}

func (p *ProctoringSampler) tick(ctx context.Context) {
	if !p.cfg.Source.Ready() {
		return
	}

	frame, err := p.cfg.Source.Capture(ctx)
	if err != nil {
		if errors.Is(err, ErrCameraPermissionDenied) {
			p.Deny()
			return
		}
		p.logger.Debug().Err(err).Msg("frame capture failed, skipping tick")
		return
	}

	mimeType := frame.MIMEType
	if mimeType == "" {
		mimeType = mimetype.Detect(frame.Data).String()
	}

	result, err := p.cfg.Interviewer.CheckFrame(ctx, ai.ProctoringInput{
		FrameDataURI: ai.EncodeDataURI(mimeType, frame.Data),
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.ProctoringChecks().WithLabelValues("failed").Inc()
		p.logger.Debug().Err(err).Msg("proctoring check failed, skipping tick")
		return
	}
	if ctx.Err() != nil {
		return
	}

	if !result.HasViolation {
		observability.ProctoringChecks().WithLabelValues("clear").Inc()
		return
	}

	observability.ProctoringChecks().WithLabelValues("violation").Inc()
	observability.ProctoringViolations().WithLabelValues(result.ViolationType).Inc()

	if p.cfg.OnWarning != nil {
		p.cfg.OnWarning(result)
	}

	if p.cfg.Evidence != nil {
		go p.archive(result.ViolationType, frame.Data)
	}
}

func (p *ProctoringSampler) archive(violation string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), evidenceUploadTimeout)
	defer cancel()

	url, err := p.cfg.Evidence.ArchiveFrame(ctx, p.cfg.SessionID, violation, data)
	if err != nil {
		p.logger.Warn().Err(err).Str("violation", violation).Msg("failed to archive proctoring evidence")
		return
	}
	p.logger.Debug().Str("violation", violation).Str("url", url).Msg("proctoring evidence stored")
}
