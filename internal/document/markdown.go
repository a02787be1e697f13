package document

import "strings"

// Markdown renders d as markdown: the first block becomes a heading, bold
// and italic ranges become emphasis markers. Markdown has no underline, so
// underlined runs are emitted as plain text.
func Markdown(d Document) string {
	var out strings.Builder
	for i, b := range d.Blocks {
		if i == 0 {
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			out.WriteString("# ")
			out.WriteString(b.Text)
			out.WriteString("\n\n")
			continue
		}
		out.WriteString(markdownBlock(b))
		out.WriteString("\n\n")
	}
	return strings.TrimRight(out.String(), "\n") + "\n"
}

func markdownBlock(b Block) string {
	if len(b.Styles) == 0 {
		return b.Text
	}
	runes := []rune(b.Text)
	bold := make([]bool, len(runes)+1)
	italic := make([]bool, len(runes)+1)
	for _, sr := range b.Styles {
		for i := sr.Offset; i < sr.End() && i < len(runes); i++ {
			switch sr.Style {
			case StyleBold:
				bold[i] = true
			case StyleItalic:
				italic[i] = true
			}
		}
	}

	var s strings.Builder
	inBold, inItalic := false, false
	for i := 0; i <= len(runes); i++ {
		// Close inner markers before outer ones so nesting stays balanced.
		if inItalic && !italic[i] {
			s.WriteString("_")
			inItalic = false
		}
		if inBold && !bold[i] {
			if inItalic {
				s.WriteString("_")
				inItalic = false
			}
			s.WriteString("**")
			inBold = false
		}
		if i == len(runes) {
			break
		}
		if bold[i] && !inBold {
			s.WriteString("**")
			inBold = true
		}
		if italic[i] && !inItalic {
			s.WriteString("_")
			inItalic = true
		}
		s.WriteRune(runes[i])
	}
	return s.String()
}
