package service

import (
	"github.com/noah-isme/codegrade-api/internal/dto"
	"github.com/noah-isme/codegrade-api/internal/models"
)

// Render projects a task onto the fields the caller may see. The premium
// section is attached only for the owner of an unlocked task; in every other
// case it is left out entirely rather than blanked.
func Render(task models.Task, forOwner bool) dto.DisclosedView {
	public := task.Public()
	view := dto.DisclosedView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Language:    task.Language,
		CreatedAt:   task.CreatedAt,
		Public: dto.PublicFeedbackView{
			Score:     public.Score,
			Strengths: cloneStrings(public.Strengths),
			Summary:   public.Summary,
		},
		Unlocked: task.Unlocked,
	}

	if forOwner {
		view.Code = task.Code
		view.ExpectedOutput = task.ExpectedOutput
	}

	if task.Unlocked && forOwner {
		premium := task.Premium()
		view.Premium = &dto.PremiumFeedbackView{
			Analysis:       premium.Analysis,
			Defects:        cloneStrings(premium.Defects),
			RefactoredCode: premium.RefactoredCode,
		}
	}

	return view
}

func cloneStrings(values []string) []string {
	cloned := make([]string, len(values))
	copy(cloned, values)
	return cloned
}
