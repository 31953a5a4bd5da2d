package llm

import (
	"strings"
)

// ParseNumberedList extracts the items of a numbered or bulleted list, one per
// line. Lines that carry no numbering or bullet are ignored unless nothing in
// the text did, in which case every non-empty line is taken as an item.
func ParseNumberedList(text string) []string {
	lines := strings.Split(text, "\n")

	items := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line[0] >= '0' && line[0] <= '9' || strings.HasPrefix(line, "-") {
			item := strings.TrimSpace(strings.TrimLeft(line, "0123456789.- "))
			if item != "" {
				items = append(items, item)
			}
		}
	}

	if len(items) == 0 {
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line != "" {
				items = append(items, line)
			}
		}
	}

	return items
}
