package analysis

import (
	"regexp"
	"sort"
	"strings"
)

const sectionGeneral = "General document"

var headingPattern = regexp.MustCompile(
	`(?m)^[ \t]*((?i:section|seção|secao|clause|cláusula|clausula|article|artigo|art\.)\s+[0-9IVXLC]+[^\n]{0,80}` +
		`|\d+(?:\.\d+)*\.?[ \t]+\p{Lu}[^\n]{0,80})[ \t]*$`,
)

type heading struct {
	offset int
	title  string
}

// sectionIndex maps byte offsets to the nearest preceding heading.
type sectionIndex struct {
	headings []heading
}

func newSectionIndex(text string) *sectionIndex {
	idx := &sectionIndex{}
	for _, loc := range headingPattern.FindAllStringSubmatchIndex(text, -1) {
		title := strings.TrimRight(strings.TrimSpace(text[loc[2]:loc[3]]), ":.;")
		idx.headings = append(idx.headings, heading{offset: loc[0], title: title})
	}
	return idx
}

func (s *sectionIndex) at(offset int) string {
	i := sort.Search(len(s.headings), func(i int) bool {
		return s.headings[i].offset > offset
	})
	if i == 0 {
		return sectionGeneral
	}
	return s.headings[i-1].title
}
