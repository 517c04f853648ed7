package dto

import (
	"time"

	"github.com/noah-isme/proprep-api/internal/models"
)

// StartInterviewRequest configures a new mock interview.
type StartInterviewRequest struct {
	Role         string   `json:"role" validate:"required,min=2,max=120"`
	Difficulty   string   `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Topics       []string `json:"topics" validate:"omitempty,max=20,dive,min=1,max=80"`
	QuestionBank string   `json:"questionBank" validate:"omitempty,max=20000"`
	Proctoring   bool     `json:"proctoring"`
}

// SubmitResponseRequest carries the candidate's answer to the pending question.
type SubmitResponseRequest struct {
	Text string `json:"text" validate:"max=10000"`
}

// FrameRequest carries a webcam still, either as a data URI or raw base64.
type FrameRequest struct {
	Frame string `json:"frame" validate:"required,max=8000000"`
}

// LiveMessage is a client frame received over the interview websocket.
type LiveMessage struct {
	Type  string `json:"type" validate:"required,oneof=response speech frame camera_denied retry ping"`
	Text  string `json:"text" validate:"max=10000"`
	Final bool   `json:"final"`
	Frame string `json:"frame" validate:"max=8000000"`
}

// InterviewStateResponse is the observable interview state.
type InterviewStateResponse struct {
	SessionID         string            `json:"sessionId"`
	Phase             string            `json:"phase"`
	Role              string            `json:"role"`
	Difficulty        string            `json:"difficulty"`
	Transcript        []models.Message  `json:"transcript"`
	CurrentFeedback   *models.Feedback  `json:"currentFeedback,omitempty"`
	Feedback          []models.Feedback `json:"feedback"`
	LastError         string            `json:"lastError,omitempty"`
	ProctoringEnabled bool              `json:"proctoringEnabled"`
	StartedAt         *time.Time        `json:"startedAt,omitempty"`
	SaveFailed        bool              `json:"saveFailed,omitempty"`
}

// SessionSummaryResponse is a session row in listings.
type SessionSummaryResponse struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Role       string    `json:"role"`
	Difficulty string    `json:"difficulty"`
	Score      int       `json:"score"`
	Duration   string    `json:"duration"`
	Status     string    `json:"status"`
	HasReport  bool      `json:"hasReport"`
}

// SessionDetailResponse is the full stored session.
type SessionDetailResponse struct {
	SessionSummaryResponse
	Feedback      []models.Feedback     `json:"feedback"`
	Transcript    []models.Message      `json:"transcript"`
	SummaryReport *models.SummaryReport `json:"summaryReport,omitempty"`
}

// ReviewEntry pairs a transcript message with the feedback it received.
type ReviewEntry struct {
	Message  models.Message   `json:"message"`
	Feedback *models.Feedback `json:"feedback,omitempty"`
}

// SessionReviewResponse is the post-interview review view.
type SessionReviewResponse struct {
	Session SessionDetailResponse `json:"session"`
	Entries []ReviewEntry         `json:"entries"`
}

// NewSessionSummaryResponse converts a model into a listing DTO.
func NewSessionSummaryResponse(session models.InterviewSession) SessionSummaryResponse {
	return SessionSummaryResponse{
		ID:         session.ID,
		Date:       session.Date,
		Role:       session.Role,
		Difficulty: session.Difficulty,
		Score:      session.Score,
		Duration:   session.Duration,
		Status:     session.Status,
		HasReport:  session.Report() != nil,
	}
}

// NewSessionSummaryResponseSlice converts a slice of sessions into listing DTOs.
func NewSessionSummaryResponseSlice(sessions []models.InterviewSession) []SessionSummaryResponse {
	out := make([]SessionSummaryResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, NewSessionSummaryResponse(session))
	}
	return out
}

// NewSessionDetailResponse converts a model into a detail DTO.
func NewSessionDetailResponse(session models.InterviewSession) SessionDetailResponse {
	return SessionDetailResponse{
		SessionSummaryResponse: NewSessionSummaryResponse(session),
		Feedback:               session.FeedbackList(),
		Transcript:             session.TranscriptList(),
		SummaryReport:          session.Report(),
	}
}

// NewSessionReviewResponse pairs each user message with its feedback by message id.
// Sessions stored without message ids fall back to pairing by user turn order.
func NewSessionReviewResponse(session models.InterviewSession) SessionReviewResponse {
	detail := NewSessionDetailResponse(session)

	byMessage := make(map[string]models.Feedback, len(detail.Feedback))
	for _, item := range detail.Feedback {
		if item.MessageID != "" {
			byMessage[item.MessageID] = item
		}
	}

	entries := make([]ReviewEntry, 0, len(detail.Transcript))
	userTurn := 0
	for _, message := range detail.Transcript {
		entry := ReviewEntry{Message: message}
		if message.Role == models.MessageRoleUser {
			if item, ok := byMessage[message.ID]; ok {
				fb := item
				entry.Feedback = &fb
			} else if userTurn < len(detail.Feedback) && detail.Feedback[userTurn].MessageID == "" {
				fb := detail.Feedback[userTurn]
				entry.Feedback = &fb
			}
			userTurn++
		}
		entries = append(entries, entry)
	}

	return SessionReviewResponse{Session: detail, Entries: entries}
}

// LoginRequest carries demo credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=1,max=128"`
}

// LoginResponse returns the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
	Email     string    `json:"email"`
}

// DashboardChartPoint is one completed interview on the score chart.
type DashboardChartPoint struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// DashboardStatsResponse aggregates the stored interview history.
type DashboardStatsResponse struct {
	TotalInterviews     int                      `json:"totalInterviews"`
	CompletedInterviews int                      `json:"completedInterviews"`
	AverageScore        int                      `json:"averageScore"`
	AverageDuration     int                      `json:"averageDuration"`
	MostFrequentRole    string                   `json:"mostFrequentRole"`
	InterviewsThisMonth int                      `json:"interviewsThisMonth"`
	RecentInterviews    []SessionSummaryResponse `json:"recentInterviews"`
	ChartData           []DashboardChartPoint    `json:"chartData"`
	GeneratedAt         time.Time                `json:"generatedAt"`
}
