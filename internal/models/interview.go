package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Interview session status values.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// Transcript roles.
const (
	MessageRoleUser = "user"
	MessageRoleAI   = "ai"
)

// Message is one turn of the interview transcript.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Feedback is the coaching result for the user message referenced by MessageID.
type Feedback struct {
	MessageID   string `json:"messageId"`
	Feedback    string `json:"feedback"`
	Suggestions string `json:"suggestions"`
	Score       int    `json:"score"`
}

// SummaryReport is generated once after the interview ends.
type SummaryReport struct {
	OverallScore        int    `json:"overallScore"`
	Strengths           string `json:"strengths"`
	AreasForImprovement string `json:"areasForImprovement"`
	FinalVerdict        string `json:"finalVerdict"`
}

// InterviewSession is the persisted record of a single mock interview.
type InterviewSession struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	Date          time.Time      `gorm:"index;not null" json:"date"`
	Role          string         `gorm:"size:120;not null" json:"role"`
	Difficulty    string         `gorm:"size:16;not null" json:"difficulty"`
	Score         int            `gorm:"not null;default:0" json:"score"`
	Duration      string         `gorm:"size:16;not null;default:0" json:"duration"`
	Feedback      datatypes.JSON `gorm:"type:json" json:"-"`
	Transcript    datatypes.JSON `gorm:"type:json" json:"-"`
	SummaryReport datatypes.JSON `gorm:"type:json" json:"-"`
	Status        string         `gorm:"size:16;index;not null;default:active" json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// TableName pins the table name.
func (InterviewSession) TableName() string {
	return "interview_sessions"
}

// FeedbackList decodes the stored feedback items.
func (s InterviewSession) FeedbackList() []Feedback {
	items := []Feedback{}
	if len(s.Feedback) == 0 {
		return items
	}
	_ = json.Unmarshal(s.Feedback, &items)
	return items
}

// TranscriptList decodes the stored transcript.
func (s InterviewSession) TranscriptList() []Message {
	items := []Message{}
	if len(s.Transcript) == 0 {
		return items
	}
	_ = json.Unmarshal(s.Transcript, &items)
	return items
}

// Report decodes the stored summary report, nil when none was generated.
func (s InterviewSession) Report() *SummaryReport {
	if len(s.SummaryReport) == 0 || string(s.SummaryReport) == "null" {
		return nil
	}
	var report SummaryReport
	if err := json.Unmarshal(s.SummaryReport, &report); err != nil {
		return nil
	}
	return &report
}

// EncodeJSON marshals v into a JSON column value.
func EncodeJSON(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
