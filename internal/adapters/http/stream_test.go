package httpadapter

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/domain"
)

func streamEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	return events
}

func TestStreamProcessingBatchUntilCompleted(t *testing.T) {
	fixture := newFixture()
	fixture.documents.batches = []*domain.ProcessingBatch{
		{Progress: 20, Total: 2, Remaining: 2},
		{Progress: 60, Total: 2, Remaining: 1, Processed: 1},
		{Progress: 100, Total: 2, Processed: 2, Completed: true},
	}
	handler := fixture.handler(config.Config{APIProgressStreamIntervalMS: 1})

	req := httptest.NewRequest(http.MethodGet, "/v1/processing/stream?ids=doc-1,doc-2", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	events := streamEvents(t, res.Body.String())
	want := []string{eventProgress, eventProgress, eventDone}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", events, want)
	}
	if !strings.Contains(res.Body.String(), `"progress":100`) {
		t.Fatalf("expected final snapshot in stream:\n%s", res.Body.String())
	}
}

func TestStreamProcessingBatchLookupErrorBeforeHeaders(t *testing.T) {
	fixture := newFixture()
	fixture.documents.err = domain.WrapError(domain.ErrInvalidInput, "processing batch", errors.New("at most 100 ids are allowed"))
	handler := fixture.handler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/processing/stream?ids=doc-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

type failingAfterFirstBatch struct {
	*documentsFake
	calls int
}

func (f *failingAfterFirstBatch) Batch(ctx context.Context, ids []string) (*domain.ProcessingBatch, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("connection reset")
	}
	return &domain.ProcessingBatch{Total: len(ids), Remaining: len(ids)}, nil
}

func TestStreamProcessingBatchEmitsErrorEvent(t *testing.T) {
	docs := &failingAfterFirstBatch{documentsFake: &documentsFake{}}
	handler := NewRouter(config.Config{APIProgressStreamIntervalMS: 1}, Services{Documents: docs}, WithLogger(discardLogger())).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/processing/stream?ids=doc-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	events := streamEvents(t, res.Body.String())
	if strings.Join(events, ",") != eventProgress+","+eventError {
		t.Fatalf("events = %v", events)
	}
	if strings.Contains(res.Body.String(), "connection reset") {
		t.Fatalf("internal error leaked to stream:\n%s", res.Body.String())
	}
}

func openStream(t *testing.T, ctx context.Context, baseURL string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/processing/stream?ids=doc-1", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func TestOpenStreamsDoNotStarveOtherRoutes(t *testing.T) {
	fixture := newFixture()
	fixture.documents.batches = []*domain.ProcessingBatch{{Progress: 20, Total: 1, Remaining: 1}}
	server := httptest.NewServer(fixture.handler(config.Config{
		APIBackpressureMaxInFlight:  2,
		APIBackpressureWaitMS:       10,
		APIProgressStreamIntervalMS: 5,
		APIProgressStreamMaxOpen:    8,
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for range 2 {
		if res := openStream(t, ctx, server.URL); res.StatusCode != http.StatusOK {
			t.Fatalf("expected stream to open, got %d", res.StatusCode)
		}
	}

	res, err := http.Get(server.URL + "/v1/dashboard")
	if err != nil {
		t.Fatalf("dashboard request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected dashboard to be served next to open streams, got %d", res.StatusCode)
	}
}

func TestOpenStreamsAreCapped(t *testing.T) {
	fixture := newFixture()
	fixture.documents.batches = []*domain.ProcessingBatch{{Progress: 20, Total: 1, Remaining: 1}}
	server := httptest.NewServer(fixture.handler(config.Config{
		APIProgressStreamIntervalMS: 5,
		APIProgressStreamMaxOpen:    1,
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if res := openStream(t, ctx, server.URL); res.StatusCode != http.StatusOK {
		t.Fatalf("expected first stream to open, got %d", res.StatusCode)
	}
	res := openStream(t, ctx, server.URL)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 beyond the stream cap, got %d", res.StatusCode)
	}
	if res.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After on rejected stream")
	}
}
