package ai

import "context"

// EvaluationInput contains the artefacts embedded into the evaluation prompt.
type EvaluationInput struct {
	Title          string
	Description    string
	Language       string
	Code           string
	ExpectedOutput string
}

// PublicSection is the free part of the model's verdict.
type PublicSection struct {
	Score     int
	Strengths []string
	Summary   string
}

// PremiumSection is the paid part of the model's verdict.
type PremiumSection struct {
	Analysis       string
	Defects        []string
	RefactoredCode string
}

// Feedback is a fully validated evaluation split into its public and premium halves.
type Feedback struct {
	Public  PublicSection
	Premium PremiumSection
}

// Generator describes a generative model that turns a prompt into raw text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
