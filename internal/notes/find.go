package notes

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// summarySource implements fuzzy.Source over note titles.
type summarySource []Summary

func (s summarySource) String(i int) string {
	return s[i].Title
}

func (s summarySource) Len() int {
	return len(s)
}

// Find filters summaries by a fuzzy title match, best match first. An empty
// query returns the input unchanged.
func Find(summaries []Summary, query string) []Summary {
	query = strings.TrimSpace(query)
	if query == "" {
		return summaries
	}
	matches := fuzzy.FindFrom(query, summarySource(summaries))
	out := make([]Summary, 0, len(matches))
	for _, m := range matches {
		out = append(out, summaries[m.Index])
	}
	return out
}
