package promptbuilder

import (
	"fmt"

	"github.com/xavigate/chatcore/pkg/runtimeconfig"
)

// ConfigurationError reports a bad style configuration. It is recovered
// locally: the builder falls back to the default style and the turn
// continues.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("prompt configuration error: %s", e.Reason)
}

// styleModifiers are the instruction fragments merged into the base prompt
// per style. Default adds nothing.
var styleModifiers = map[string]string{
	runtimeconfig.StyleDefault: "",

	runtimeconfig.StyleEmpathetic: `

STYLE MODIFIER - Empathetic:
You MUST adopt an empathetic communication style for this response.
- Start with emotional validation before offering solutions
- Acknowledge how the user's specific trait scores might influence their feelings
- Offer gentle, compassionate guidance with emotional support
- Use softer language and avoid being too direct`,

	runtimeconfig.StyleAnalytical: `

STYLE MODIFIER - Analytical:
You MUST adopt an analytical, data-driven communication style.
- Start with a clear analysis of the user's trait profile data
- Reference precise trait scores and structure responses with numbered points
- Present cause-and-effect relationships clearly
- Focus on systematic, measurable approaches and avoid emotional language`,

	runtimeconfig.StyleMotivational: `

STYLE MODIFIER - Motivational:
You MUST adopt an energetic, motivational coaching style.
- Start with an enthusiastic acknowledgment of the user's strengths
- Frame every challenge as an opportunity for growth
- Celebrate dominant traits as superpowers
- End with a powerful call-to-action`,

	runtimeconfig.StyleSocratic: `

STYLE MODIFIER - Socratic:
You MUST use the Socratic method - guide primarily through questions.
- Start with a thought-provoking question about the user's traits
- Ask at least three questions throughout the response
- Avoid direct advice - guide the user to discover insights
- End with a question that encourages deep reflection`,
}

// resolveStyle maps a style to its modifier fragment. Custom substitutes
// the configured modifier verbatim; custom without a modifier and unknown
// styles fail closed to default, reported via the returned error.
func resolveStyle(style, customModifier string) (string, error) {
	if style == runtimeconfig.StyleCustom {
		if customModifier == "" {
			return styleModifiers[runtimeconfig.StyleDefault],
				&ConfigurationError{Reason: "custom style without customStyleModifier"}
		}
		return "\n\nSTYLE MODIFIER - Custom:\n" + customModifier, nil
	}

	modifier, ok := styleModifiers[style]
	if !ok {
		return styleModifiers[runtimeconfig.StyleDefault],
			&ConfigurationError{Reason: fmt.Sprintf("unknown prompt style %q", style)}
	}
	return modifier, nil
}
