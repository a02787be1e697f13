package ui

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	diff "github.com/shogoki/gotextdiff"
)

var hunkRe = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// PrintUnifiedDiff writes a numbered unified diff between the old and new
// text of a note. Each block is one line. Nothing is written when the texts
// are equal.
func PrintUnifiedDiff(w io.Writer, label, oldContent, newContent string) {
	if oldContent == newContent {
		return
	}
	styles := NewStyles(w)

	// Trailing newlines keep the last line from being reported as changed
	// only because it lacks one.
	oldContent = ensureNewline(oldContent)
	newContent = ensureNewline(newContent)

	fmt.Fprintf(w, "%s %s\n", styles.Bold.Render("Rewrite:"), label)

	diffBytes := diff.Diff(label, []byte(oldContent), label, []byte(newContent))
	if len(diffBytes) == 0 {
		return
	}

	maxLine := max(strings.Count(oldContent, "\n"), strings.Count(newContent, "\n"))
	lineNumWidth := max(len(strconv.Itoa(maxLine)), 3)

	var newLineNum int
	var deletionOffset int // position within a deletion block
	hunkCount := 0

	for _, line := range strings.Split(string(diffBytes), "\n") {
		if strings.HasPrefix(line, "diff ") ||
			strings.HasPrefix(line, "--- ") ||
			strings.HasPrefix(line, "+++ ") ||
			len(line) == 0 {
			continue
		}

		prefix := line[0]
		content := line[1:]

		switch prefix {
		case '@':
			if matches := hunkRe.FindStringSubmatch(line); matches != nil {
				newLineNum, _ = strconv.Atoi(matches[2])
			}
			if hunkCount > 0 {
				fmt.Fprintln(w, styles.LineNumber.Render(strings.Repeat(" ", lineNumWidth)+"  ..."))
			}
			hunkCount++

		case '-':
			num := styles.Error.Render(fmt.Sprintf("%*d- ", lineNumWidth, newLineNum+deletionOffset))
			fmt.Fprintf(w, "%s%s\n", num, styles.DiffRemove.Render(content))
			deletionOffset++

		case '+':
			deletionOffset = 0
			num := styles.Success.Render(fmt.Sprintf("%*d+ ", lineNumWidth, newLineNum))
			fmt.Fprintf(w, "%s%s\n", num, styles.DiffAdd.Render(content))
			newLineNum++

		case ' ':
			deletionOffset = 0
			num := styles.LineNumber.Render(fmt.Sprintf("%*d  ", lineNumWidth, newLineNum))
			fmt.Fprintf(w, "%s%s\n", num, styles.DiffContext.Render(content))
			newLineNum++

		default:
			// "\ No newline at end of file" and similar markers
			fmt.Fprintln(w, line)
		}
	}
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
