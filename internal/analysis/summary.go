package analysis

import (
	"strings"
	"unicode/utf8"
)

// summarize returns the leading sentences of text that fit within limit bytes.
// A first sentence longer than limit is cut at a word boundary.
func summarize(text string, limit int) string {
	clean := strings.Join(strings.Fields(text), " ")
	if len(clean) <= limit {
		return clean
	}

	end := 0
	for i := 0; i < len(clean) && i < limit; i++ {
		switch clean[i] {
		case '.', '!', '?':
			if i+1 == len(clean) || clean[i+1] == ' ' {
				end = i + 1
			}
		}
	}
	if end > 0 {
		return clean[:end]
	}

	cut := strings.LastIndexByte(clean[:limit], ' ')
	if cut <= 0 {
		cut = limit
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
	}
	return strings.TrimSpace(clean[:cut]) + "..."
}

// excerpt returns the text around [start,end) with whitespace collapsed.
func excerpt(text string, start, end int) string {
	from := max(0, start-excerptRadius)
	to := min(len(text), end+excerptRadius)
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	out := strings.Join(strings.Fields(text[from:to]), " ")
	if from > 0 {
		out = "..." + out
	}
	if to < len(text) {
		out += "..."
	}
	return out
}
