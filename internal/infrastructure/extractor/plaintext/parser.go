package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// Parser reads UTF-8 text, falling back to Latin-1 for legacy encoded files.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, raw []byte) (domain.ExtractedText, error) {
	raw = trimBOM(raw)
	if utf8.Valid(raw) {
		return domain.ExtractedText{Text: normalizeNewlines(string(raw))}, nil
	}
	return domain.ExtractedText{Text: normalizeNewlines(decodeLatin1(raw))}, nil
}

func trimBOM(raw []byte) []byte {
	if len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF {
		return raw[3:]
	}
	return raw
}

func decodeLatin1(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}
