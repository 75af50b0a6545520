package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/iecho-project/iecho/internal/agent"
	"github.com/iecho-project/iecho/internal/session"
)

const (
	maxFollowUps = 3

	// followUpTimeout bounds the suggestion call separately from the main
	// turn budget; by the time it runs the answer already exists.
	followUpTimeout = 10 * time.Second

	// followUpHistoryLines caps the conversation excerpt at two exchanges,
	// counting the one just completed.
	followUpHistoryLines = 4

	followUpSystemPrompt = "You are a helpful assistant that generates relevant follow-up questions. Be concise and practical."

	// followUpCutset strips list markers the model adds despite the format
	// instruction.
	followUpCutset = "- *123456789. "
)

const followUpPromptTemplate = `Based on this conversation, generate exactly 3 relevant follow-up questions that a user might naturally ask next.

%s

Generate questions that:
- Are directly related to the topic discussed
- Help the user dive deeper into the subject
- Are practical and actionable
- Avoid repeating information already covered

Format: Return only the questions, one per line, without numbers or bullets.`

// followUpDefaults pad the suggestion set to exactly three when generation
// fails or yields fewer usable questions.
var followUpDefaults = []string{
	"Would you like a step-by-step plan?",
	"Do you want references or further reading?",
	"Should I tailor this to a specific setting?",
}

// followUps suggests the next questions a user might ask after this turn.
// Best effort: any failure falls back to the defaults rather than failing a
// turn that already has its answer.
func (e *Engine) followUps(ctx context.Context, query, answer string, history []session.Exchange) []string {
	fctx, cancel := context.WithTimeout(ctx, followUpTimeout)
	defer cancel()

	resp, err := genkit.Generate(fctx, e.g,
		ai.WithModelName(e.modelName),
		ai.WithSystem(followUpSystemPrompt),
		ai.WithPrompt(followUpPrompt(query, answer, history)),
	)
	if err != nil {
		e.logger.Warn("follow-up generation failed, using defaults", "error", err)
		return slices.Clone(followUpDefaults)
	}
	return parseFollowUps(agent.FilterThinking(resp.Text()))
}

// followUpPrompt renders the generation prompt from the completed turn and
// the trailing conversation excerpt.
func followUpPrompt(query, answer string, history []session.Exchange) string {
	lines := make([]string, 0, len(history)*2+2)
	for _, ex := range history {
		lines = append(lines, "User: "+ex.Query, "Assistant: "+ex.Answer)
	}
	lines = append(lines, "User: "+query, "Assistant: "+answer)
	if len(lines) > followUpHistoryLines {
		lines = lines[len(lines)-followUpHistoryLines:]
	}

	var b strings.Builder
	b.WriteString("Original question: ")
	b.WriteString(query)
	b.WriteString("\nResponse: ")
	b.WriteString(answer)
	b.WriteString("\nConversation history: ")
	b.WriteString(strings.Join(lines, "\n"))

	return fmt.Sprintf(followUpPromptTemplate, b.String())
}

// parseFollowUps extracts question-like lines from model output and pads the
// result to exactly maxFollowUps entries.
func parseFollowUps(text string) []string {
	var questions []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		// Length is checked before stripping markers so a bare "1. ?" style
		// fragment does not slip through.
		if line == "" || !strings.Contains(line, "?") || len(line) <= 10 {
			continue
		}
		questions = append(questions, strings.Trim(line, followUpCutset))
	}
	for _, d := range followUpDefaults {
		if len(questions) >= maxFollowUps {
			break
		}
		questions = append(questions, d)
	}
	return questions[:maxFollowUps]
}
