package prompt

import (
	"fmt"
	"strings"

	"github.com/samsaffron/tonenotes/internal/tone"
)

// ToneSystemPrompt builds the instruction for a tone rewrite at coordinate c
// using the personas in set.
func ToneSystemPrompt(c tone.Coordinate, set tone.Set) string {
	w := tone.Blend(c)
	var b strings.Builder
	fmt.Fprintf(&b, `You are a tone adjustment expert. Rewrite the given text to match the tone indicated by these coordinates: x=%s, y=%s.
Where:
- Top (y=-1) is %s style
- Right (x=1) is %s style
- Bottom (y=1) is %s style
- Left (x=-1) is %s style`,
		formatAxis(c.X), formatAxis(c.Y),
		set.Top, set.Right, set.Bottom, set.Left)

	b.WriteString("\n\nBlend of the four styles at this position:")
	for _, d := range tone.Directions() {
		if share := w.Get(d); share > 0 {
			fmt.Fprintf(&b, "\n- %s: %.0f%%", set.Get(d).Title, share*100)
		}
	}

	b.WriteString(`

Rules:
1. Keep the meaning of the text; change only its tone
2. Keep line breaks where the input has them
3. Reply with the rewritten text only, with no quotes, preamble or explanation`)
	return b.String()
}

// ToneUserPrompt wraps the text to rewrite. The text is not escaped: line
// breaks and quotes reach the model as written.
func ToneUserPrompt(text string) string {
	return "Please rewrite this text: \"" + text + "\""
}

func formatAxis(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}
