package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pulsesync/internal/bootstrap/logging"
	"pulsesync/internal/errs"
	syncusecase "pulsesync/internal/usecase/sync"
)

// Ingestor is the slice of the sync service the receiver needs.
type Ingestor interface {
	IngestWebhookEvent(ctx context.Context, input syncusecase.WebhookEventInput) error
}

// Server is the public webhook receiver. It always answers 200: vendors
// aggressively retry and back off on anything else, and an event we cannot
// process is our problem, not theirs.
type Server struct {
	addr     string
	ingestor Ingestor
}

func NewServer(addr string, ingestor Ingestor) *Server {
	return &Server{
		addr:     addr,
		ingestor: ingestor,
	}
}

// eventEnvelope is the minimal shape shared by the vendors' push payloads.
type eventEnvelope struct {
	ItemKey   string `json:"itemKey"`
	IssueKey  string `json:"issueKey"`
	EventType string `json:"eventType"`
}

func (e eventEnvelope) key() string {
	if e.ItemKey != "" {
		return e.ItemKey
	}
	return e.IssueKey
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhooks/{provider}", s.handleEvent)
	return r
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := logging.WithAttrs(r.Context(), slog.String("component", "transport.webhook"))
	provider := chi.URLParam(r, "provider")

	var event eventEnvelope
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		logging.Warn(ctx, "webhook payload not decodable, dropped",
			slog.String("provider", provider),
			slog.Any("err", errs.Loggable(err)),
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.ingestor.IngestWebhookEvent(ctx, syncusecase.WebhookEventInput{
		Provider:  provider,
		ItemKey:   event.key(),
		EventType: event.EventType,
	}); err != nil {
		// Still 200; the failure lives in our logs and audit trail.
		logging.Error(ctx, "webhook ingestion failed",
			slog.String("provider", provider),
			slog.Any("err", errs.Loggable(err)),
		)
	}

	w.WriteHeader(http.StatusOK)
}

// ListenAndServe runs the receiver until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logging.Info(ctx, "webhook receiver listening", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown webhook receiver")
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errs.Wrap(err, "serve webhook receiver")
		}
		return nil
	}
}
