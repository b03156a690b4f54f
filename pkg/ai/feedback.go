package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Score bounds applied to the model's verdict.
const (
	MinScore = 0
	MaxScore = 100
)

// ParseError reports a model response that could not be turned into Feedback.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "invalid evaluation response: " + e.Reason
	}
	return fmt.Sprintf("invalid evaluation response: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type rawPublic struct {
	Score     *float64 `json:"score" validate:"required"`
	Strengths []string `json:"strengths" validate:"required"`
	Summary   string   `json:"summary_feedback" validate:"required"`
}

type rawPremium struct {
	Analysis       string   `json:"detailed_analysis" validate:"required"`
	Defects        []string `json:"bugs_found" validate:"required"`
	RefactoredCode *string  `json:"refactored_code" validate:"required"`
}

type rawFeedback struct {
	Public  *rawPublic  `json:"public_data" validate:"required"`
	Premium *rawPremium `json:"premium_data" validate:"required"`
}

var feedbackValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseFeedback extracts the single top-level JSON object from a model response
// and validates that both the public and premium sections are complete.
func ParseFeedback(raw string) (Feedback, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return Feedback{}, &ParseError{Reason: "no json object found"}
	}

	var data rawFeedback
	if err := json.Unmarshal([]byte(raw[start:end+1]), &data); err != nil {
		return Feedback{}, &ParseError{Reason: "malformed json", Err: err}
	}

	if err := feedbackValidator.Struct(data); err != nil {
		return Feedback{}, &ParseError{Reason: "missing required fields", Err: err}
	}

	return Feedback{
		Public: PublicSection{
			Score:     ClampScore(*data.Public.Score),
			Strengths: data.Public.Strengths,
			Summary:   strings.TrimSpace(data.Public.Summary),
		},
		Premium: PremiumSection{
			Analysis:       strings.TrimSpace(data.Premium.Analysis),
			Defects:        data.Premium.Defects,
			RefactoredCode: *data.Premium.RefactoredCode,
		},
	}, nil
}

// ClampScore rounds a reported score and forces it into [MinScore, MaxScore].
func ClampScore(score float64) int {
	rounded := math.Round(score)
	if rounded < MinScore {
		return MinScore
	}
	if rounded > MaxScore {
		return MaxScore
	}
	return int(rounded)
}
