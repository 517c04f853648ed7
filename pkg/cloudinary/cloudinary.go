package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether every credential is present.
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// EvidenceStore archives proctoring frames that were flagged as violations.
type EvidenceStore struct {
	client *cloudinary.Cloudinary
	folder string
	now    func() time.Time
	logger zerolog.Logger
}

// New constructs a Cloudinary backed evidence store.
func New(cfg Config, logger zerolog.Logger) (*EvidenceStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &EvidenceStore{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		now:    time.Now,
		logger: logger.With().Str("component", "evidence_store").Logger(),
	}, nil
}

// ArchiveFrame uploads a flagged frame and returns its secure URL.
func (s *EvidenceStore) ArchiveFrame(ctx context.Context, sessionID, violation string, frame []byte) (string, error) {
	params := uploader.UploadParams{
		Folder:       s.sessionFolder(sessionID),
		PublicID:     BuildPublicID(violation, s.now()),
		ResourceType: "image",
		Tags:         []string{"proctoring", violation},
	}

	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(frame), params)
	if err != nil {
		return "", fmt.Errorf("failed to archive frame: %w", err)
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Str("violation", violation).
		Str("public_id", result.PublicID).
		Msg("proctoring evidence archived")

	return result.SecureURL, nil
}

func (s *EvidenceStore) sessionFolder(sessionID string) string {
	if s.folder == "" {
		return sessionID
	}
	return s.folder + "/" + sessionID
}

// BuildPublicID derives a URL safe asset id from a label and capture time.
func BuildPublicID(label string, at time.Time) string {
	base := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, label)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "frame"
	}

	return fmt.Sprintf("%s-%d", base, at.UnixMilli())
}
