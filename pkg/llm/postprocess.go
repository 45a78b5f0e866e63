package llm

import (
	"regexp"
	"strings"
)

var (
	sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)
	listItemPattern  = regexp.MustCompile(`(?:\d+[.)]|[-*•])\s*([^\n\d*•]+)`)
)

// DedupSentences removes repeated and trivially short sentences from model
// output while preserving order. Comparison is case-insensitive.
func DedupSentences(text string) string {
	sentences := sentenceBoundary.Split(text, -1)

	seen := make(map[string]bool)
	var unique []string

	for _, sentence := range sentences {
		sentence = strings.TrimRight(strings.TrimSpace(sentence), ".!?")
		normalized := strings.ToLower(sentence)
		if len(normalized) <= 10 || seen[normalized] {
			continue
		}
		seen[normalized] = true
		unique = append(unique, sentence)
	}

	processed := strings.Join(unique, ". ")
	if processed != "" && !strings.HasSuffix(processed, ".") {
		processed += "."
	}

	return processed
}

// ParseListItems recognizes numbered, dashed and bulleted list items in model
// output. When no item matches, the trimmed raw output becomes the sole
// element so callers always get something usable back.
func ParseListItems(text string) []string {
	var items []string

	for _, match := range listItemPattern.FindAllStringSubmatch(text, -1) {
		item := strings.TrimSpace(match[1])
		if item != "" {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			items = []string{trimmed}
		}
	}

	return items
}
