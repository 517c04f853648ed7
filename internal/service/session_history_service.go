package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/internal/repository"
)

// SessionHistoryService serves stored interviews for review.
type SessionHistoryService interface {
	List(ctx context.Context) ([]dto.SessionSummaryResponse, error)
	Review(ctx context.Context, sessionID string) (dto.SessionReviewResponse, error)
	RegenerateReport(ctx context.Context, sessionID string) (models.SummaryReport, error)
}

type sessionHistoryService struct {
	repo      repository.InterviewSessionRepository
	finalizer SessionFinalizer
	cache     CacheInvalidator
	logger    zerolog.Logger
}

// NewSessionHistoryService builds the history service. cache may be nil.
func NewSessionHistoryService(repo repository.InterviewSessionRepository, finalizer SessionFinalizer, cache CacheInvalidator, logger zerolog.Logger) SessionHistoryService {
	return &sessionHistoryService{
		repo:      repo,
		finalizer: finalizer,
		cache:     cache,
		logger:    logger.With().Str("component", "session_history_service").Logger(),
	}
}

func (s *sessionHistoryService) List(ctx context.Context) ([]dto.SessionSummaryResponse, error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewSessionSummaryResponseSlice(sessions), nil
}

func (s *sessionHistoryService) Review(ctx context.Context, sessionID string) (dto.SessionReviewResponse, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return dto.SessionReviewResponse{}, err
	}
	return dto.NewSessionReviewResponse(session), nil
}

func (s *sessionHistoryService) RegenerateReport(ctx context.Context, sessionID string) (models.SummaryReport, error) {
	report, err := s.finalizer.RegenerateReport(ctx, sessionID)
	if err != nil {
		return models.SummaryReport{}, err
	}

	s.logger.Info().Str("session_id", sessionID).Int("overall_score", report.OverallScore).Msg("summary report regenerated")
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate dashboard cache")
		}
	}
	return report, nil
}
