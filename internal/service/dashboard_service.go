package service

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/internal/repository"
)

const (
	dashboardCacheKey   = "proprep:dashboard:stats"
	recentInterviewsMax = 5
	noRoleLabel         = "N/A"
)

// DashboardService aggregates the stored interview history.
type DashboardService interface {
	Stats(ctx context.Context) (dto.DashboardStatsResponse, error)
	Invalidate(ctx context.Context) error
}

type dashboardService struct {
	repo     repository.InterviewSessionRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDashboardService builds the dashboard aggregator. cache may be nil.
func NewDashboardService(repo repository.InterviewSessionRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) DashboardService {
	return &dashboardService{
		repo:     repo,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "dashboard_service").Logger(),
		now:      time.Now,
	}
}

func (s *dashboardService) Stats(ctx context.Context) (dto.DashboardStatsResponse, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, dashboardCacheKey).Result(); err == nil {
			var response dto.DashboardStatsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Msg("dashboard cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
	}

	sessions, err := s.repo.List(ctx)
	if err != nil {
		return dto.DashboardStatsResponse{}, err
	}

	response := BuildDashboardStats(sessions, s.now())

	if s.cache != nil && s.cacheTTL > 0 {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

func (s *dashboardService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, dashboardCacheKey).Err()
}

// BuildDashboardStats computes the dashboard from sessions ordered newest first.
// A session counts as completed once it has a positive duration.
func BuildDashboardStats(sessions []models.InterviewSession, now time.Time) dto.DashboardStatsResponse {
	response := dto.DashboardStatsResponse{
		TotalInterviews:  len(sessions),
		MostFrequentRole: noRoleLabel,
		RecentInterviews: []dto.SessionSummaryResponse{},
		ChartData:        []dto.DashboardChartPoint{},
		GeneratedAt:      now.UTC(),
	}

	var completed []models.InterviewSession
	roleCounts := map[string]int{}
	bestCount := 0

	for _, session := range sessions {
		if sessionMinutes(session) > 0 {
			completed = append(completed, session)
		}

		roleCounts[session.Role]++
		if roleCounts[session.Role] > bestCount {
			bestCount = roleCounts[session.Role]
			response.MostFrequentRole = session.Role
		}

		date := session.Date.In(now.Location())
		if date.Year() == now.Year() && date.Month() == now.Month() {
			response.InterviewsThisMonth++
		}
	}

	response.CompletedInterviews = len(completed)
	if len(completed) > 0 {
		var scoreTotal, durationTotal float64
		for _, session := range completed {
			scoreTotal += float64(session.Score)
			durationTotal += sessionMinutes(session)
		}
		response.AverageScore = int(math.Round(scoreTotal / float64(len(completed))))
		response.AverageDuration = int(math.Round(durationTotal / float64(len(completed))))
	}

	limit := recentInterviewsMax
	if len(sessions) < limit {
		limit = len(sessions)
	}
	response.RecentInterviews = dto.NewSessionSummaryResponseSlice(sessions[:limit])

	for i := len(completed) - 1; i >= 0; i-- {
		response.ChartData = append(response.ChartData, dto.DashboardChartPoint{
			Name:  completed[i].Date.Format("Jan 2"),
			Score: completed[i].Score,
		})
	}

	return response
}

func sessionMinutes(session models.InterviewSession) float64 {
	minutes, err := strconv.ParseFloat(session.Duration, 64)
	if err != nil || math.IsNaN(minutes) {
		return 0
	}
	return minutes
}
