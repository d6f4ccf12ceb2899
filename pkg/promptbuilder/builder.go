// Package promptbuilder assembles the final model input from five ordered,
// independently optional segments: styled base prompt, trait narrative,
// persistent summary, recent history, retrieved reference chunks.
package promptbuilder

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/xavigate/chatcore/pkg/helpers"
	"github.com/xavigate/chatcore/pkg/retrieval"
	"github.com/xavigate/chatcore/pkg/sessionmemory"
	"github.com/xavigate/chatcore/pkg/traits"
)

//go:embed templates/base_system_prompt.tmpl
var baseSystemPromptTemplate string

// Input carries everything a single turn contributes to the prompt.
type Input struct {
	BasePromptTemplate  string // empty uses the built-in default
	Style               string
	CustomStyleModifier string
	Username            string
	FullName            string

	Traits  traits.Profile
	Summary string
	History []sessionmemory.Exchange
	Chunks  []retrieval.Chunk // ranked, best first

	HistoryLimit int
	TopK         int
	MaxChars     int // 0 means unlimited
}

// Result is the assembled prompt plus the post-truncation chunk list - the
// sources callers actually see, not the raw retrieval result.
type Result struct {
	Prompt  string
	Sources []retrieval.Chunk
}

type baseTemplateData struct {
	Username string
	FullName string
}

// Build assembles the prompt. Bad configuration (an unusable style or a
// malformed base template) is recovered by falling back to the built-in
// defaults; the ConfigurationError is still returned so callers can log
// it, alongside a usable Result.
func Build(input Input) (Result, error) {
	var styleErr error
	modifier, styleErr := resolveStyle(input.Style, input.CustomStyleModifier)

	data := baseTemplateData{Username: input.Username, FullName: input.FullName}
	base, err := renderBasePrompt(input.BasePromptTemplate, data)
	if err != nil {
		if styleErr == nil {
			styleErr = &ConfigurationError{Reason: fmt.Sprintf("unusable base prompt template: %v", err)}
		}
		base, err = renderBasePrompt("", data)
		if err != nil {
			return Result{}, err
		}
	}
	base += modifier

	narrative := input.Traits.Narrative()

	history := helpers.SafeLastN(input.History, max(input.HistoryLimit, 0))
	if input.HistoryLimit <= 0 {
		history = nil
	}

	chunks := input.Chunks
	if len(chunks) > input.TopK {
		chunks = chunks[:max(input.TopK, 0)]
	}

	// The base prompt and trait narrative are never truncated. When the
	// assembled prompt exceeds the ceiling, drop oldest history exchanges
	// first, then lowest-ranked chunks.
	for {
		prompt := assemble(base, narrative, input.Summary, history, chunks)
		if input.MaxChars <= 0 || len(prompt) <= input.MaxChars {
			return Result{Prompt: prompt, Sources: chunks}, styleErr
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		if len(chunks) > 0 {
			chunks = chunks[:len(chunks)-1]
			continue
		}
		return Result{Prompt: prompt, Sources: chunks}, styleErr
	}
}

func renderBasePrompt(text string, data baseTemplateData) (string, error) {
	if strings.TrimSpace(text) == "" {
		text = baseSystemPromptTemplate
	}

	tmpl, err := template.New("base_prompt").Parse(text)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse base prompt template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render base prompt template")
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// assemble joins the non-empty segments in their fixed order. Absent
// segments are omitted entirely.
func assemble(base, narrative, summaryText string, history []sessionmemory.Exchange, chunks []retrieval.Chunk) string {
	sections := []string{base}

	if narrative != "" {
		sections = append(sections, narrative)
	}
	if summaryText != "" {
		sections = append(sections, "USER BACKGROUND (from previous sessions):\n"+summaryText)
	}
	if len(history) > 0 {
		var b strings.Builder
		b.WriteString("RECENT CONVERSATION:\n")
		for _, exchange := range history {
			fmt.Fprintf(&b, "%s: %s\n", exchange.Role, exchange.Content)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}
	if len(chunks) > 0 {
		var b strings.Builder
		b.WriteString("RELEVANT REFERENCE CONTEXT:\n")
		for _, chunk := range chunks {
			if chunk.Topic != "" {
				fmt.Fprintf(&b, "[%s] %s\n", chunk.Topic, chunk.Text)
			} else {
				fmt.Fprintf(&b, "%s\n", chunk.Text)
			}
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(sections, "\n\n")
}
