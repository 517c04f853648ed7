package ai

import "context"

// Difficulty levels accepted by the interviewer prompts.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Violation types reported by the proctoring check.
const (
	ViolationNone          = "none"
	ViolationLookingAway   = "looking_away"
	ViolationTyping        = "typing"
	ViolationPhoneDetected = "phone_detected"
)

// QuestionInput describes the next-question request.
type QuestionInput struct {
	Role              string
	Difficulty        string
	QuestionBank      string
	PreviousQuestions []string
}

// QuestionResult is the interviewer's next utterance.
type QuestionResult struct {
	Question   string `json:"question"`
	IsComplete bool   `json:"isComplete"`
}

// FeedbackInput carries a single answer to be scored.
type FeedbackInput struct {
	UserResponse      string
	InterviewQuestion string
	InterviewContext  string
}

// FeedbackResult is the coaching feedback for one answer.
type FeedbackResult struct {
	Feedback    string `json:"feedback"`
	Suggestions string `json:"suggestions"`
	Score       int    `json:"score"`
}

// ProctoringInput wraps a webcam still encoded as a data URI.
type ProctoringInput struct {
	FrameDataURI string
}

// ProctoringResult classifies a webcam still.
type ProctoringResult struct {
	HasViolation   bool   `json:"hasViolation"`
	ViolationType  string `json:"violationType"`
	WarningMessage string `json:"warningMessage"`
}

// TranscriptEntry is a cleaned transcript line submitted for the summary.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FeedbackEntry is a cleaned feedback item submitted for the summary.
type FeedbackEntry struct {
	Feedback    string `json:"feedback"`
	Suggestions string `json:"suggestions"`
	Score       int    `json:"score"`
}

// SummaryInput is the full interview handed to the report prompt.
type SummaryInput struct {
	Transcript []TranscriptEntry
	Feedback   []FeedbackEntry
	Role       string
}

// SummaryResult is the post-interview report.
type SummaryResult struct {
	OverallScore        int    `json:"overallScore"`
	Strengths           string `json:"strengths"`
	AreasForImprovement string `json:"areasForImprovement"`
	FinalVerdict        string `json:"finalVerdict"`
}

// Interviewer is the generative backend used by the interview flow.
type Interviewer interface {
	NextQuestion(ctx context.Context, input QuestionInput) (QuestionResult, error)
	ScoreResponse(ctx context.Context, input FeedbackInput) (FeedbackResult, error)
	CheckFrame(ctx context.Context, input ProctoringInput) (ProctoringResult, error)
	Summarize(ctx context.Context, input SummaryInput) (SummaryResult, error)
}
