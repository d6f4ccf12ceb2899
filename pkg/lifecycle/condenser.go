package lifecycle

import (
	"bytes"
	"context"
	_ "embed"
	"text/template"

	"github.com/openai/openai-go"
	"github.com/pkg/errors"

	"github.com/xavigate/chatcore/pkg/ai"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
)

//go:embed templates/condense_prompt.tmpl
var condensePromptTemplate string

const condenserSystemPrompt = "You are a helpful assistant that creates concise, comprehensive summaries while preserving ALL important information. Never lose personal details, names, dates, or specific facts."

// LLMCondenser condenses transcripts with a (usually cheaper) model.
type LLMCondenser struct {
	completions ai.Completion
	model       string
}

var _ Condenser = (*LLMCondenser)(nil)

func NewLLMCondenser(completions ai.Completion, model string) *LLMCondenser {
	return &LLMCondenser{
		completions: completions,
		model:       model,
	}
}

type condensePromptData struct {
	PriorSummary string
	Transcript   string
}

func (c *LLMCondenser) Condense(ctx context.Context, exchanges []sessionmemory.Exchange, priorSummary string) (string, error) {
	tmpl := template.Must(template.New("condense_prompt").Parse(condensePromptTemplate))
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, condensePromptData{
		PriorSummary: priorSummary,
		Transcript:   Transcript(exchanges),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render condensation prompt")
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(condenserSystemPrompt),
		openai.UserMessage(buf.String()),
	}

	summaryText, err := c.completions.Completions(ctx, messages, ai.CompletionParams{
		Model:       c.model,
		Temperature: 0.3,
		MaxTokens:   2500,
	})
	if err != nil {
		return "", errors.Wrap(err, "condensation call failed")
	}
	return summaryText, nil
}
