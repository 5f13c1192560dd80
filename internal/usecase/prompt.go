package usecase

import (
	"strings"

	"healthbridge/internal/domain"
)

func summaryMessages(text string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildSummaryPrompt()},
		{Role: "user", Content: text},
	}
}

func buildSummaryPrompt() string {
	return strings.Join([]string{
		"Task:",
		"Summarize the text the user provides.",
		"",
		"Rules:",
		"1) Keep the summary short and in plain language.",
		"2) Preserve medication names, dosages, dates and other concrete facts exactly.",
		"3) Do not add information that is not in the text.",
		"4) Respond with the summary only, no preamble.",
	}, "\n")
}

func symptomMessages(symptoms string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildSymptomPrompt()},
		{Role: "user", Content: symptoms},
	}
}

func buildSymptomPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You are a general health-information assistant.",
		"",
		"Task:",
		"Given a description of symptoms, describe common possible causes,",
		"sensible self-care steps, and warning signs that call for urgent care.",
		"",
		"Rules:",
		"1) Use plain, non-alarming language.",
		"2) Never present the analysis as a diagnosis.",
		"3) Close by advising the user to consult a healthcare professional.",
	}, "\n")
}
