package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PublicFeedback is the free portion of an evaluation shown to every caller.
type PublicFeedback struct {
	Score     int      `json:"score"`
	Strengths []string `json:"strengths"`
	Summary   string   `json:"summary"`
}

// PremiumFeedback is the paid portion of an evaluation, disclosed only after unlock.
type PremiumFeedback struct {
	Analysis       string   `json:"analysis"`
	Defects        []string `json:"defects"`
	RefactoredCode string   `json:"refactoredCode"`
}

// Task is a submitted code snippet together with its AI evaluation.
type Task struct {
	ID              string                              `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID         string                              `gorm:"size:128;not null;index" json:"owner_id"`
	Title           string                              `gorm:"size:255;not null" json:"title"`
	Description     string                              `gorm:"type:text" json:"description"`
	Language        string                              `gorm:"size:32;not null;index" json:"language"`
	Code            string                              `gorm:"type:text;not null" json:"code"`
	ExpectedOutput  string                              `gorm:"type:text" json:"expected_output"`
	PublicFeedback  datatypes.JSONType[PublicFeedback]  `gorm:"not null" json:"public_feedback"`
	PremiumFeedback datatypes.JSONType[PremiumFeedback] `gorm:"not null" json:"premium_feedback"`
	Unlocked        bool                                `gorm:"not null;default:false;index" json:"unlocked"`
	CreatedAt       time.Time                           `json:"created_at"`
}

// BeforeCreate assigns an opaque identifier when none has been provided.
func (t *Task) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Public returns the decoded public feedback section.
func (t Task) Public() PublicFeedback {
	return t.PublicFeedback.Data()
}

// Premium returns the decoded premium feedback section.
func (t Task) Premium() PremiumFeedback {
	return t.PremiumFeedback.Data()
}
