package ai

import "strings"

const evaluatorPersona = "You are a Senior Technical Interviewer. Evaluate the following coding task submission."

const responseContract = `CRITICAL INSTRUCTION: Output RAW JSON only. Do not use markdown.

JSON STRUCTURE:
{
  "public_data": {
    "score": (0-100),
    "strengths": ["string", "string", "string"],
    "summary_feedback": "string"
  },
  "premium_data": {
    "detailed_analysis": "string",
    "bugs_found": ["string", "string"],
    "refactored_code": "string"
  }
}`

// BuildEvaluationPrompt renders the fixed evaluation prompt for a submission.
func BuildEvaluationPrompt(input EvaluationInput) string {
	expected := strings.TrimSpace(input.ExpectedOutput)
	if expected == "" {
		expected = "Not provided"
	}

	builder := strings.Builder{}
	builder.WriteString(evaluatorPersona)
	builder.WriteString("\n\nTASK DETAILS:\n- Title: ")
	builder.WriteString(input.Title)
	builder.WriteString("\n- Language: ")
	builder.WriteString(input.Language)
	builder.WriteString("\n- Description: ")
	builder.WriteString(input.Description)
	builder.WriteString("\n- Expected Output: ")
	builder.WriteString(expected)
	builder.WriteString("\n\nCODE SUBMISSION:\n")
	builder.WriteString(input.Code)
	builder.WriteString("\n\n")
	builder.WriteString(responseContract)
	return builder.String()
}
