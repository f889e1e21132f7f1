// Package legacy recovers readable text from pre-2007 binary office files (.doc, .xls).
// The OLE2 container is opened with mscfb and only the body streams are kept. Those
// streams are then scanned for printable runs in both 8-bit and UTF-16LE encodings, the
// way the strings(1) utility does, which is enough for rule matching but drops all layout.
package legacy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const minRun = 4

// bodyStreams names the OLE2 streams that hold document text: Word body, BIFF8 and BIFF5 workbooks.
var bodyStreams = map[string]bool{
	"WordDocument": true,
	"Workbook":     true,
	"Book":         true,
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, raw []byte) (domain.ExtractedText, error) {
	raw = bodyOf(raw)
	wide := wideRuns(raw)
	narrow := narrowRuns(raw)

	runs := wide
	if runeCount(narrow) > runeCount(wide) {
		runs = narrow
	}
	if len(runs) == 0 {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "read legacy document", errors.New("no readable text"))
	}
	return domain.ExtractedText{Text: strings.Join(runs, "\n")}, nil
}

// bodyOf returns the concatenated body streams of an OLE2 container. Input that is not a
// readable container, or has no body stream, is returned unchanged.
func bodyOf(raw []byte) []byte {
	doc, err := mscfb.New(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	var body bytes.Buffer
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !bodyStreams[entry.Name] {
			continue
		}
		if _, err := io.Copy(&body, entry); err != nil {
			return raw
		}
	}
	if body.Len() == 0 {
		return raw
	}
	return body.Bytes()
}

func printable(r rune) bool {
	return r == '\t' || (unicode.IsPrint(r) && r != unicode.ReplacementChar)
}

// latinWide limits UTF-16 detection to Latin scripts and general punctuation so pairs of
// ASCII bytes are not mistaken for CJK code units.
func latinWide(u uint16) bool {
	return u < 0x0250 || (u >= 0x2000 && u <= 0x206F)
}

func runeCount(runs []string) int {
	n := 0
	for _, r := range runs {
		n += len([]rune(r))
	}
	return n
}

func narrowRuns(raw []byte) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) >= minRun {
			if s := strings.TrimSpace(string(cur)); s != "" {
				out = append(out, s)
			}
		}
		cur = cur[:0]
	}
	for _, c := range raw {
		r := rune(c)
		if c >= 0x80 && c < 0xA0 {
			flush()
			continue
		}
		if printable(r) {
			cur = append(cur, r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func wideRuns(raw []byte) []string {
	var out []string
	var cur []uint16
	flush := func() {
		if len(cur) >= minRun {
			if s := strings.TrimSpace(string(utf16.Decode(cur))); s != "" {
				out = append(out, s)
			}
		}
		cur = cur[:0]
	}
	for i := 0; i+1 < len(raw); i += 2 {
		u := uint16(raw[i]) | uint16(raw[i+1])<<8
		if latinWide(u) && printable(rune(u)) {
			cur = append(cur, u)
			continue
		}
		flush()
	}
	flush()
	return out
}
