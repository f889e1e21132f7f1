package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/domain"
)

type uploadFile struct {
	name    string
	content string
}

func multipartBody(t *testing.T, files ...uploadFile) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreateFormFile("file", f.name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(f.content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.WriteField("note", "ignored"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func postUpload(t *testing.T, handler http.Handler, files ...uploadFile) (*httptest.ResponseRecorder, uploadResponse) {
	t.Helper()
	body, contentType := multipartBody(t, files...)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var resp uploadResponse
	if res.Code < 500 {
		_ = json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(&resp)
	}
	return res, resp
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newFixture().handler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected %s header to be set", requestIDHeader)
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	handler := newFixture().handler(config.Config{APIRequestValidation: true})

	res, resp := postUpload(t, handler, uploadFile{name: "file.txt", content: "hello"})
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(resp.Documents) != 1 {
		t.Fatalf("expected one outcome, got %+v", resp.Documents)
	}
	got := resp.Documents[0]
	if got.Status != uploadStatusDone || got.Document == nil || got.Document.ID != "doc-file.txt" {
		t.Fatalf("unexpected outcome: %+v", got)
	}
	if got.Document.SizeBytes != 5 {
		t.Fatalf("expected size 5, got %d", got.Document.SizeBytes)
	}
}

func TestUploadSeveralDocumentsReportsPerFileOutcome(t *testing.T) {
	fixture := newFixture()
	fixture.ingestor.uploadErr = map[string]error{
		"virus.exe": domain.WrapError(domain.ErrInvalidInput, "validate upload", domain.ErrUnsupportedFormat),
	}
	handler := fixture.handler(config.Config{})

	res, resp := postUpload(t, handler,
		uploadFile{name: "contract.pdf", content: "%PDF"},
		uploadFile{name: "virus.exe", content: "MZ"},
		uploadFile{name: "prices.xlsx", content: "PK"},
	)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(resp.Documents) != 3 {
		t.Fatalf("expected three outcomes, got %d", len(resp.Documents))
	}
	statuses := []string{resp.Documents[0].Status, resp.Documents[1].Status, resp.Documents[2].Status}
	want := []string{uploadStatusDone, uploadStatusFailed, uploadStatusDone}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("outcome statuses = %v, want %v", statuses, want)
		}
	}
	if resp.Documents[1].Error == "" || resp.Documents[1].Document != nil {
		t.Fatalf("expected rejected outcome to carry only an error: %+v", resp.Documents[1])
	}
	if len(fixture.ingestor.uploaded) != 2 {
		t.Fatalf("expected two ingested files, got %v", fixture.ingestor.uploaded)
	}
}

func TestUploadAllRejectedUsesFirstErrorStatus(t *testing.T) {
	fixture := newFixture()
	fixture.ingestor.uploadErr = map[string]error{
		"big.pdf":   domain.WrapError(domain.ErrPayloadTooLarge, "validate upload", errors.New("too big")),
		"virus.exe": domain.WrapError(domain.ErrInvalidInput, "validate upload", domain.ErrUnsupportedFormat),
	}
	handler := fixture.handler(config.Config{})

	res, resp := postUpload(t, handler, uploadFile{name: "big.pdf", content: "x"}, uploadFile{name: "virus.exe", content: "x"})
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("expected outcomes for both files, got %+v", resp.Documents)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := newFixture().handler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadWithoutFileParts(t *testing.T) {
	handler := newFixture().handler(config.Config{})

	res, _ := postUpload(t, handler)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}
