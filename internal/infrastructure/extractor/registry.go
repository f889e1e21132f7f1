// Package extractor turns stored documents into plain text, dispatching on file type.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/htmltext"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/legacy"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor/xlsx"
)

const (
	defaultMaxSourceBytes int64 = 64 << 20
	charsPerPage                = 3000
)

// Parser extracts text from the raw bytes of one file format.
type Parser interface {
	Parse(ctx context.Context, raw []byte) (domain.ExtractedText, error)
}

type Registry struct {
	storage  ports.ObjectStorage
	parsers  map[string]Parser
	maxBytes int64
}

func NewRegistry(storage ports.ObjectStorage, maxBytes int64) *Registry {
	if maxBytes <= 0 {
		maxBytes = defaultMaxSourceBytes
	}
	return &Registry{
		storage:  storage,
		parsers:  make(map[string]Parser),
		maxBytes: maxBytes,
	}
}

// NewDefault registers a parser for every supported file type.
func NewDefault(storage ports.ObjectStorage, maxBytes int64) *Registry {
	r := NewRegistry(storage, maxBytes)
	text := plaintext.New()
	r.Register(text, "TXT", "MD", "CSV")
	r.Register(pdf.New(), "PDF")
	r.Register(docx.New(), "DOCX")
	r.Register(xlsx.New(), "XLSX")
	r.Register(htmltext.New(), "HTML")
	r.Register(legacy.New(), "DOC", "XLS")
	return r
}

func (r *Registry) Register(p Parser, fileTypes ...string) {
	for _, ft := range fileTypes {
		r.parsers[strings.ToUpper(ft)] = p
	}
}

func (r *Registry) Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error) {
	if r.storage == nil {
		return domain.ExtractedText{}, errors.New("extractor has no storage")
	}
	reader, err := r.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, r.maxBytes+1))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > r.maxBytes {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrPayloadTooLarge, "read source document", fmt.Errorf("%s exceeds %d bytes", doc.Filename, r.maxBytes))
	}

	fileType := doc.FileType
	if fileType == "" {
		fileType = domain.FileTypeOf(doc.Filename)
	}
	return r.Parse(ctx, fileType, raw)
}

// Parse extracts text from raw bytes of the given file type.
func (r *Registry) Parse(ctx context.Context, fileType string, raw []byte) (domain.ExtractedText, error) {
	p, ok := r.parsers[strings.ToUpper(fileType)]
	if !ok {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrUnsupportedFormat, "extract text", fmt.Errorf("file type %q", fileType))
	}
	out, err := p.Parse(ctx, raw)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("parse %s: %w", strings.ToLower(fileType), err)
	}
	out.Text = strings.TrimSpace(out.Text)
	if out.Pages <= 0 && out.Text != "" {
		out.Pages = (utf8.RuneCountInString(out.Text) + charsPerPage - 1) / charsPerPage
	}
	return out, nil
}
