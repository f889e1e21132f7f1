package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultStreamInterval    = time.Second
	defaultStreamMaxDuration = 10 * time.Minute
	streamWriteSlack         = 5 * time.Second

	eventProgress = "progress"
	eventDone     = "done"
	eventError    = "error"
)

// streamProcessingBatch pushes batch snapshots as Server-Sent Events until every document is
// terminal, the client goes away or the stream reaches its maximum duration.
func (rt *Router) streamProcessingBatch(w http.ResponseWriter, r *http.Request) {
	ids, err := bindIDs(r.URL.Query())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	// The first snapshot is taken before headers go out so lookup errors keep their status.
	batch, err := rt.services.Documents.Batch(r.Context(), ids)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	interval := durationOr(time.Duration(rt.cfg.APIProgressStreamIntervalMS)*time.Millisecond, defaultStreamInterval)
	maxDuration := durationOr(time.Duration(rt.cfg.APIProgressStreamMaxDuration)*time.Second, defaultStreamMaxDuration)

	rc := http.NewResponseController(w)
	// The server write timeout is shorter than a stream; ignore writers that cannot move it.
	if err := rc.SetWriteDeadline(time.Now().Add(maxDuration + streamWriteSlack)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		rt.logger.Warn("stream_write_deadline_failed", "error", err)
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if rt.metrics != nil {
		defer rt.metrics.TrackStream()()
	}

	ctx, cancel := context.WithTimeout(r.Context(), maxDuration)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 1; ; seq++ {
		event := eventProgress
		if batch.Completed {
			event = eventDone
		}
		if err := writeEvent(w, seq, event, batch); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			rt.logger.Warn("stream_flush_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
			return
		}
		if batch.Completed {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		batch, err = rt.services.Documents.Batch(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			message := err.Error()
			if mapErrorToHTTPStatus(err) == http.StatusInternalServerError {
				rt.logger.Error("stream_snapshot_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
				message = "internal error"
			}
			_ = writeEvent(w, seq+1, eventError, map[string]string{"error": message})
			_ = rc.Flush()
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, id int, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
