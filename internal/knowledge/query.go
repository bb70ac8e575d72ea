package knowledge

import (
	"regexp"
	"strings"
)

// Query modes, in resolution priority order.
const (
	ModeTitle    = "title"
	ModeMeeting  = "meeting"
	ModeSemantic = "semantic"
	ModeFallback = "fallback"
)

// ParsedQuery is the outcome of query resolution: a structured lookup or a
// free-text search term.
type ParsedQuery struct {
	Mode  string
	Value string
}

var structuredQueryRe = regexp.MustCompile(`(?i)^(title|id|meeting):\s*(.+)$`)

// ParseQuery recognizes the structured prefixes "title:", "id:" and
// "meeting:"; anything else is free text destined for semantic search.
func ParseQuery(query string) ParsedQuery {
	q := strings.TrimSpace(query)
	if m := structuredQueryRe.FindStringSubmatch(q); m != nil {
		value := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "title":
			return ParsedQuery{Mode: ModeTitle, Value: value}
		case "id", "meeting":
			return ParsedQuery{Mode: ModeMeeting, Value: value}
		}
	}
	return ParsedQuery{Mode: ModeSemantic, Value: q}
}
