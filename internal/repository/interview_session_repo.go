package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/proprep-api/internal/models"
)

// ErrSessionNotFound is returned when no interview session matches the id.
var ErrSessionNotFound = errors.New("interview session not found")

// SessionUpdate lists the fields to write. Nil fields are left untouched.
type SessionUpdate struct {
	Score         *int
	Duration      *string
	Feedback      *[]models.Feedback
	Transcript    *[]models.Message
	SummaryReport *models.SummaryReport
	Status        *string
}

// InterviewSessionRepository is the durable store for interview sessions.
type InterviewSessionRepository interface {
	Create(ctx context.Context, role, difficulty string) (models.InterviewSession, error)
	Update(ctx context.Context, id string, update SessionUpdate) error
	Get(ctx context.Context, id string) (models.InterviewSession, error)
	List(ctx context.Context) ([]models.InterviewSession, error)
}

type interviewSessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewInterviewSessionRepository constructs a GORM backed session store.
func NewInterviewSessionRepository(db *gorm.DB) InterviewSessionRepository {
	return &interviewSessionRepository{db: db, now: time.Now}
}

func (r *interviewSessionRepository) Create(ctx context.Context, role, difficulty string) (models.InterviewSession, error) {
	session := models.InterviewSession{
		ID:         uuid.NewString(),
		Date:       r.now().UTC(),
		Role:       role,
		Difficulty: difficulty,
		Score:      0,
		Duration:   "0",
		Status:     models.SessionStatusActive,
	}

	feedback, err := models.EncodeJSON([]models.Feedback{})
	if err != nil {
		return models.InterviewSession{}, err
	}
	transcript, err := models.EncodeJSON([]models.Message{})
	if err != nil {
		return models.InterviewSession{}, err
	}
	session.Feedback = feedback
	session.Transcript = transcript

	if err := r.db.WithContext(ctx).Create(&session).Error; err != nil {
		return models.InterviewSession{}, fmt.Errorf("create interview session: %w", err)
	}

	return session, nil
}

func (r *interviewSessionRepository) Update(ctx context.Context, id string, update SessionUpdate) error {
	values := map[string]interface{}{}

	if update.Score != nil {
		values["score"] = *update.Score
	}
	if update.Duration != nil {
		values["duration"] = *update.Duration
	}
	if update.Status != nil {
		values["status"] = *update.Status
	}
	if update.Feedback != nil {
		encoded, err := models.EncodeJSON(*update.Feedback)
		if err != nil {
			return fmt.Errorf("encode feedback: %w", err)
		}
		values["feedback"] = encoded
	}
	if update.Transcript != nil {
		encoded, err := models.EncodeJSON(*update.Transcript)
		if err != nil {
			return fmt.Errorf("encode transcript: %w", err)
		}
		values["transcript"] = encoded
	}
	if update.SummaryReport != nil {
		encoded, err := models.EncodeJSON(update.SummaryReport)
		if err != nil {
			return fmt.Errorf("encode summary report: %w", err)
		}
		values["summary_report"] = encoded
	}

	if len(values) == 0 {
		_, err := r.Get(ctx, id)
		return err
	}

	result := r.db.WithContext(ctx).Model(&models.InterviewSession{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("update interview session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (r *interviewSessionRepository) Get(ctx context.Context, id string) (models.InterviewSession, error) {
	var session models.InterviewSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.InterviewSession{}, ErrSessionNotFound
		}
		return models.InterviewSession{}, err
	}
	return session, nil
}

func (r *interviewSessionRepository) List(ctx context.Context) ([]models.InterviewSession, error) {
	var sessions []models.InterviewSession
	if err := r.db.WithContext(ctx).Order("date DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
