package service

import (
	"errors"
	"time"

	"github.com/noah-isme/proprep-api/internal/dto"
	"github.com/noah-isme/proprep-api/internal/models"
	"github.com/noah-isme/proprep-api/pkg/ai"
)

var (
	// ErrEmptyResponse is returned when the submitted answer is blank.
	ErrEmptyResponse = errors.New("response text is empty")
	// ErrNotAwaitingResponse is returned when an answer arrives outside the awaiting_response phase.
	ErrNotAwaitingResponse = errors.New("interview is not awaiting a response")
	// ErrNoPendingQuestion indicates an answer was submitted but no question was ever asked.
	ErrNoPendingQuestion = errors.New("no interviewer question to respond to")
	// ErrNothingToRetry is returned when there is no stalled request to retry.
	ErrNothingToRetry = errors.New("no failed request to retry")
	// ErrInterviewStarted is returned when StartInterview is called on a running interview.
	ErrInterviewStarted = errors.New("interview already started")
	// ErrSessionClosed is returned once the live view of a session has been closed.
	ErrSessionClosed = errors.New("interview session closed")
	// ErrSessionNotLive is returned when no orchestrator is registered for the id.
	ErrSessionNotLive = errors.New("interview session is not live on this server")
	// ErrInvalidFrame is returned for frames that cannot be decoded.
	ErrInvalidFrame = errors.New("invalid frame payload")
	// ErrProctoringDisabled is returned when frames are pushed to a session without proctoring.
	ErrProctoringDisabled = errors.New("proctoring is not enabled for this session")
)

// Phase is the state of the interview turn machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseAwaitingResponse
	PhaseThinking
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseAwaitingResponse:
		return "awaiting_response"
	case PhaseThinking:
		return "thinking"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// EventType names an interview notification.
type EventType string

const (
	EventState             EventType = "state"
	EventError             EventType = "error"
	EventProctoringWarning EventType = "proctoring_warning"
	EventProctoringOff     EventType = "proctoring_disabled"
	EventCompleted         EventType = "completed"
	EventReportReady       EventType = "report_ready"
	EventReportFailed      EventType = "report_failed"
)

// Event is pushed to subscribers whenever the interview changes.
type Event struct {
	Type       EventType             `json:"type"`
	SessionID  string                `json:"sessionId"`
	Phase      string                `json:"phase,omitempty"`
	Message    string                `json:"message,omitempty"`
	Proctoring *ai.ProctoringResult  `json:"proctoring,omitempty"`
	Report     *models.SummaryReport `json:"report,omitempty"`
	At         time.Time             `json:"at"`
}

// InterviewSettings is the immutable configuration of one interview.
type InterviewSettings struct {
	Role         string   `validate:"required,min=2,max=120"`
	Difficulty   string   `validate:"required,oneof=easy medium hard"`
	Topics       []string `validate:"omitempty,max=20,dive,min=1,max=80"`
	QuestionBank string   `validate:"omitempty,max=20000"`
}

// Snapshot is a copy of the observable orchestrator state.
type Snapshot struct {
	SessionID         string
	Phase             Phase
	Settings          InterviewSettings
	Transcript        []models.Message
	CurrentFeedback   *models.Feedback
	Feedback          []models.Feedback
	LastError         string
	ProctoringEnabled bool
	StartedAt         time.Time
	// SaveFailed marks a completed interview whose final save has not succeeded yet.
	SaveFailed bool
}

// Response converts the snapshot into its API representation.
func (s Snapshot) Response() dto.InterviewStateResponse {
	resp := dto.InterviewStateResponse{
		SessionID:         s.SessionID,
		Phase:             s.Phase.String(),
		Role:              s.Settings.Role,
		Difficulty:        s.Settings.Difficulty,
		Transcript:        s.Transcript,
		CurrentFeedback:   s.CurrentFeedback,
		Feedback:          s.Feedback,
		LastError:         s.LastError,
		ProctoringEnabled: s.ProctoringEnabled,
		SaveFailed:        s.SaveFailed,
	}
	if resp.Transcript == nil {
		resp.Transcript = []models.Message{}
	}
	if resp.Feedback == nil {
		resp.Feedback = []models.Feedback{}
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		resp.StartedAt = &started
	}
	return resp
}
