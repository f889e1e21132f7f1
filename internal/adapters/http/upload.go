package httpadapter

import (
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const (
	uploadField        = "file"
	uploadStatusDone   = "completed"
	uploadStatusFailed = "error"
	maxFilesPerUpload  = 50
)

type uploadOutcome struct {
	Filename string           `json:"filename"`
	Status   string           `json:"status"`
	Document *domain.Document `json:"document,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type uploadResponse struct {
	Documents []uploadOutcome `json:"documents"`
}

// uploadDocuments streams every "file" part straight into ingestion. Parts are independent: one
// rejected file does not fail the others. The response is 202 when at least one file was
// accepted, otherwise the status of the first failure.
func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart/form-data body is required"})
		return
	}

	outcomes := make([]uploadOutcome, 0, 1)
	accepted := 0
	var firstErr error
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(outcomes) == 0 {
				rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read multipart body", err))
				return
			}
			rt.logger.Warn("upload_multipart_truncated",
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
			break
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		if len(outcomes) == maxFilesPerUpload {
			_ = part.Close()
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("too many files in one request")))
			return
		}

		outcome := rt.ingestPart(r, part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		if outcome.err != nil {
			if firstErr == nil {
				firstErr = outcome.err
			}
		} else {
			accepted++
		}
		outcomes = append(outcomes, outcome.uploadOutcome)
	}

	if len(outcomes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	status := http.StatusAccepted
	if accepted == 0 {
		status = mapErrorToHTTPStatus(firstErr)
	}
	writeJSON(w, status, uploadResponse{Documents: outcomes})
}

type ingestedPart struct {
	uploadOutcome
	err error
}

func (rt *Router) ingestPart(r *http.Request, filename, mimeType string, body io.Reader) ingestedPart {
	doc, err := rt.services.Ingestor.Upload(r.Context(), filename, mimeType, body)
	if rt.metrics != nil {
		var size int64
		if doc != nil {
			size = doc.SizeBytes
		}
		rt.metrics.RecordUpload(serviceName, domain.FileTypeOf(filename), size, err)
	}
	if err != nil {
		message := err.Error()
		if mapErrorToHTTPStatus(err) == http.StatusInternalServerError {
			rt.logger.Error("upload_failed",
				"request_id", requestIDFromContext(r.Context()),
				"filename", filename,
				"error", err,
			)
			message = "internal error"
		}
		return ingestedPart{
			uploadOutcome: uploadOutcome{Filename: filename, Status: uploadStatusFailed, Error: message},
			err:           err,
		}
	}
	return ingestedPart{
		uploadOutcome: uploadOutcome{Filename: filename, Status: uploadStatusDone, Document: doc},
	}
}
