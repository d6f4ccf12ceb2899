package promptbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xavigate/chatcore/pkg/retrieval"
	"github.com/xavigate/chatcore/pkg/runtimeconfig"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
	"github.com/xavigate/chatcore/pkg/traits"
)

func exchanges(contents ...string) []sessionmemory.Exchange {
	out := make([]sessionmemory.Exchange, 0, len(contents))
	for i, content := range contents {
		role := sessionmemory.RoleUser
		if i%2 == 1 {
			role = sessionmemory.RoleAssistant
		}
		out = append(out, sessionmemory.Exchange{Role: role, Content: content})
	}
	return out
}

func TestBuildSegmentOrder(t *testing.T) {
	result, err := Build(Input{
		Style:        runtimeconfig.StyleDefault,
		Username:     "sam",
		Traits:       traits.Profile{"openness": 8},
		Summary:      "Sam paints on weekends.",
		History:      exchanges("hello", "hi there"),
		Chunks:       []retrieval.Chunk{{Text: "Creativity thrives on novelty.", Topic: "traits"}},
		HistoryLimit: 10,
		TopK:         3,
	})
	require.NoError(t, err)

	prompt := result.Prompt
	traitIdx := strings.Index(prompt, "TRAIT PROFILE:")
	summaryIdx := strings.Index(prompt, "USER BACKGROUND")
	historyIdx := strings.Index(prompt, "RECENT CONVERSATION:")
	chunkIdx := strings.Index(prompt, "RELEVANT REFERENCE CONTEXT:")

	require.Greater(t, traitIdx, 0)
	require.Greater(t, summaryIdx, traitIdx)
	require.Greater(t, historyIdx, summaryIdx)
	require.Greater(t, chunkIdx, historyIdx)

	require.Contains(t, prompt, "user: hello")
	require.Contains(t, prompt, "assistant: hi there")
	require.Contains(t, prompt, "[traits] Creativity thrives on novelty.")
}

func TestBuildOmitsEmptySegments(t *testing.T) {
	result, err := Build(Input{
		Style:        runtimeconfig.StyleDefault,
		HistoryLimit: 10,
		TopK:         3,
	})
	require.NoError(t, err)

	require.NotContains(t, result.Prompt, "TRAIT PROFILE:")
	require.NotContains(t, result.Prompt, "USER BACKGROUND")
	require.NotContains(t, result.Prompt, "RECENT CONVERSATION:")
	require.NotContains(t, result.Prompt, "RELEVANT REFERENCE CONTEXT:")
	require.Empty(t, result.Sources)
}

func TestBuildCustomTemplateAndStyle(t *testing.T) {
	result, err := Build(Input{
		BasePromptTemplate:  "You advise {{.Username}}.",
		Style:               runtimeconfig.StyleCustom,
		CustomStyleModifier: "Answer in haiku.",
		Username:            "sam",
		HistoryLimit:        10,
	})
	require.NoError(t, err)
	require.Contains(t, result.Prompt, "You advise sam.")
	require.Contains(t, result.Prompt, "STYLE MODIFIER - Custom:\nAnswer in haiku.")
}

func TestBuildCustomWithoutModifierFallsBackToDefault(t *testing.T) {
	withCustom, err := Build(Input{Style: runtimeconfig.StyleCustom})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.NotEmpty(t, withCustom.Prompt)

	withDefault, err := Build(Input{Style: runtimeconfig.StyleDefault})
	require.NoError(t, err)
	require.Equal(t, withDefault.Prompt, withCustom.Prompt)
}

func TestBuildMalformedTemplateFallsBackToDefault(t *testing.T) {
	result, err := Build(Input{
		BasePromptTemplate: "You advise {{.Username",
		Style:              runtimeconfig.StyleDefault,
		Username:           "sam",
	})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, result.Prompt, "You are Xavigate")
	require.NotContains(t, result.Prompt, "You advise")
}

func TestBuildUnknownStyleFallsBackToDefault(t *testing.T) {
	result, err := Build(Input{Style: "sarcastic"})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.NotEmpty(t, result.Prompt)
	require.NotContains(t, result.Prompt, "STYLE MODIFIER")
}

func TestBuildHistoryLimitKeepsMostRecent(t *testing.T) {
	result, err := Build(Input{
		Style:        runtimeconfig.StyleDefault,
		History:      exchanges("m0", "m1", "m2", "m3", "m4"),
		HistoryLimit: 2,
	})
	require.NoError(t, err)

	require.NotContains(t, result.Prompt, "m0")
	require.NotContains(t, result.Prompt, "m1")
	require.NotContains(t, result.Prompt, "m2")
	require.Contains(t, result.Prompt, "m3")
	require.Contains(t, result.Prompt, "m4")
	require.Less(t, strings.Index(result.Prompt, "m3"), strings.Index(result.Prompt, "m4"))
}

func TestBuildZeroHistoryLimitDropsHistory(t *testing.T) {
	result, err := Build(Input{
		Style:   runtimeconfig.StyleDefault,
		History: exchanges("m0", "m1"),
	})
	require.NoError(t, err)
	require.NotContains(t, result.Prompt, "RECENT CONVERSATION:")
}

func TestBuildTopKCapsChunks(t *testing.T) {
	result, err := Build(Input{
		Style: runtimeconfig.StyleDefault,
		Chunks: []retrieval.Chunk{
			{Text: "first", Score: 0.9},
			{Text: "second", Score: 0.8},
			{Text: "third", Score: 0.7},
		},
		TopK: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	require.Contains(t, result.Prompt, "first")
	require.Contains(t, result.Prompt, "second")
	require.NotContains(t, result.Prompt, "third")
}

func TestBuildTruncationDropsOldestHistoryFirst(t *testing.T) {
	long := strings.Repeat("x", 400)
	input := Input{
		BasePromptTemplate: "Answer briefly.",
		Style:              runtimeconfig.StyleDefault,
		History:            exchanges("old "+long, "new "+long),
		Chunks:             []retrieval.Chunk{{Text: "chunk " + long}},
		HistoryLimit:       10,
		TopK:               3,
	}

	unbounded, err := Build(input)
	require.NoError(t, err)

	input.MaxChars = len(unbounded.Prompt) - 1
	result, err := Build(input)
	require.NoError(t, err)

	require.LessOrEqual(t, len(result.Prompt), input.MaxChars)
	require.NotContains(t, result.Prompt, "old ")
	require.Contains(t, result.Prompt, "new ")
	require.Contains(t, result.Prompt, "chunk ")
	require.Len(t, result.Sources, 1)
}

func TestBuildTruncationDropsChunksAfterHistory(t *testing.T) {
	long := strings.Repeat("x", 400)
	result, err := Build(Input{
		BasePromptTemplate: "Answer briefly.",
		Style:              runtimeconfig.StyleDefault,
		History:            exchanges("old " + long),
		Chunks: []retrieval.Chunk{
			{Text: "best " + long},
			{Text: "worst " + long},
		},
		HistoryLimit: 10,
		TopK:         3,
		MaxChars:     600,
	})
	require.NoError(t, err)

	require.NotContains(t, result.Prompt, "old ")
	require.NotContains(t, result.Prompt, "worst ")
	require.Contains(t, result.Prompt, "best ")
	require.Len(t, result.Sources, 1)
}

func TestBuildNeverTruncatesBaseOrNarrative(t *testing.T) {
	result, err := Build(Input{
		BasePromptTemplate: "Answer briefly but completely.",
		Style:              runtimeconfig.StyleDefault,
		Traits:             traits.Profile{"openness": 8},
		HistoryLimit:       10,
		MaxChars:           10,
	})
	require.NoError(t, err)

	require.Contains(t, result.Prompt, "Answer briefly but completely.")
	require.Contains(t, result.Prompt, "TRAIT PROFILE:")
}
