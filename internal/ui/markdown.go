package ui

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/samsaffron/tonenotes/internal/document"
)

// rendererCache provides width-keyed caching of glamour renderers.
var rendererCache sync.Map // map[int]*glamour.TermRenderer

func getRenderer(width int) (*glamour.TermRenderer, error) {
	if cached, ok := rendererCache.Load(width); ok {
		return cached.(*glamour.TermRenderer), nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStyles(GlamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	rendererCache.Store(width, renderer)
	return renderer, nil
}

// RenderMarkdown renders markdown with glamour. On error the content is
// returned unchanged.
func RenderMarkdown(content string, width int) string {
	if content == "" {
		return ""
	}
	renderer, err := getRenderer(width)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

// RenderNote writes doc to w. Terminals get styled markdown wrapped to their
// width; anything else gets the plain markdown source.
func RenderNote(w io.Writer, doc document.Document) error {
	md := document.Markdown(doc)
	if !IsTerminal(w) {
		_, err := io.WriteString(w, md)
		return err
	}
	width := min(TerminalWidth(w, 80), 100)
	_, err := io.WriteString(w, RenderMarkdown(md, width)+"\n")
	return err
}
