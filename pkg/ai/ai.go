package ai

import (
	"context"

	"github.com/openai/openai-go"
)

// CompletionParams are the per-call model parameters taken from the
// runtime config snapshot.
type CompletionParams struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	PresencePenalty  float64
	FrequencyPenalty float64
}

type Completion interface {
	Completions(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, params CompletionParams) (string, error)
}

type Embedding interface {
	Embedding(ctx context.Context, input string, model string) ([]float64, error)
	Embeddings(ctx context.Context, inputs []string, model string) ([][]float64, error)
}
