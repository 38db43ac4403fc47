package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/quietloop/workshop/pkg/model"
	"github.com/quietloop/workshop/pkg/router"
)

const specialistTemperature = 0.2

// runSpecialist invokes the chat provider once with the specialist's system
// prompt and the user's raw request, toolChoice=none, temperature 0.2 (C9),
// and returns the trimmed response text.
func runSpecialist(ctx context.Context, m model.Model, profile router.Profile, requestText string) (string, error) {
	completion, err := m.Chat(ctx, model.ChatRequest{
		Messages: []model.Message{
			model.TextMessage("system", profile.SystemPrompt),
			model.TextMessage("user", requestText),
		},
		ToolChoice:  model.ToolChoiceNone,
		Temperature: specialistTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("specialist agent %s: %w", profile.Name, err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(completion.Choices[0].Message.Text()), nil
}

// specialistNote formats the synthesized system-role message the main loop
// injects into the conversation after a specialist agent runs (§4.9).
func specialistNote(name, text string) string {
	return fmt.Sprintf(
		"Specialist agent (%s) output:\n%s\nUse this as draft guidance and respond to the user.",
		name, text,
	)
}
