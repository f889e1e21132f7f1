package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const (
	documentPart = "word/document.xml"
	appPart      = "docProps/app.xml"
)

// Parser reads the main document part of an OOXML word file. Paragraphs become lines and
// table cells are separated by tabs.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, raw []byte) (domain.ExtractedText, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "open docx", err)
	}

	body, err := readPart(reader, documentPart)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	if body == nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "open docx", errors.New("missing "+documentPart))
	}
	text, err := documentText(body)
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "parse docx", err)
	}

	pages := 0
	if app, err := readPart(reader, appPart); err == nil && app != nil {
		pages = pageCount(app)
	}
	return domain.ExtractedText{Text: text, Pages: pages}, nil
}

func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return content, nil
	}
	return nil, nil
}

func documentText(content []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			case "tc":
				b.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

type appProperties struct {
	Pages string `xml:"Pages"`
}

func pageCount(content []byte) int {
	var props appProperties
	if err := xml.Unmarshal(content, &props); err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(props.Pages))
	if err != nil {
		return 0
	}
	return n
}
