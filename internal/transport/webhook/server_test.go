package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	syncusecase "pulsesync/internal/usecase/sync"
)

type recordingIngestor struct {
	events []syncusecase.WebhookEventInput
	err    error
}

func (r *recordingIngestor) IngestWebhookEvent(_ context.Context, input syncusecase.WebhookEventInput) error {
	r.events = append(r.events, input)
	return r.err
}

func postEvent(t *testing.T, handler http.Handler, provider, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleEventForwardsToIngestor(t *testing.T) {
	ingestor := &recordingIngestor{}
	handler := NewServer(":0", ingestor).Router()

	rec := postEvent(t, handler, "trackwise", `{"itemKey":"OPS-7","eventType":"upserted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.events) != 1 {
		t.Fatalf("ingested events = %d, want 1", len(ingestor.events))
	}
	event := ingestor.events[0]
	if event.Provider != "trackwise" || event.ItemKey != "OPS-7" || event.EventType != "upserted" {
		t.Fatalf("event = %+v", event)
	}
}

func TestHandleEventAcceptsIssueKeySpelling(t *testing.T) {
	ingestor := &recordingIngestor{}
	handler := NewServer(":0", ingestor).Router()

	rec := postEvent(t, handler, "trackwise", `{"issueKey":"OPS-7","eventType":"deleted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.events) != 1 || ingestor.events[0].ItemKey != "OPS-7" {
		t.Fatalf("events = %+v", ingestor.events)
	}
}

func TestHandleEventBadPayloadStillAnswers200(t *testing.T) {
	ingestor := &recordingIngestor{}
	handler := NewServer(":0", ingestor).Router()

	rec := postEvent(t, handler, "trackwise", `{not json`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.events) != 0 {
		t.Fatalf("ingested events = %d, want 0", len(ingestor.events))
	}
}

func TestHandleEventIngestorErrorStillAnswers200(t *testing.T) {
	ingestor := &recordingIngestor{err: errors.New("store unavailable")}
	handler := NewServer(":0", ingestor).Router()

	rec := postEvent(t, handler, "trackwise", `{"itemKey":"OPS-7","eventType":"upserted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.events) != 1 {
		t.Fatalf("ingested events = %d, want 1", len(ingestor.events))
	}
}
