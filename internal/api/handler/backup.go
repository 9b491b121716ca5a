package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrgoonie/savedb/internal/api/request"
	"github.com/mrgoonie/savedb/internal/api/response"
	"github.com/mrgoonie/savedb/internal/backup"
	"github.com/mrgoonie/savedb/internal/stream"
)

// BackupRunner runs one backup to completion, reporting progress on the
// returned channel: zero or more progress events, then exactly one
// terminal event, then the channel closes.
type BackupRunner interface {
	Run(ctx context.Context, req backup.Request) <-chan stream.Event
}

type Backup struct {
	runner BackupRunner
	logger zerolog.Logger
}

func NewBackup(runner BackupRunner, logger zerolog.Logger) *Backup {
	return &Backup{runner: runner, logger: logger}
}

// Create starts a backup. With `Accept: text/event-stream` (or the
// stream=true query flag) progress is streamed as it happens; otherwise
// the call blocks until the terminal outcome and answers with a single
// JSON document.
func (h *Backup) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	events := h.runner.Run(r.Context(), backup.Request{
		Name:          req.Name,
		ConnectionURL: req.ConnectionURL,
		Storage:       req.Descriptor(),
	})

	if wantsStream(r) {
		h.streamEvents(w, events)
		return
	}
	h.awaitOutcome(w, events)
}

func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func (h *Backup) streamEvents(w http.ResponseWriter, events <-chan stream.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.WriteError(w, http.StatusInternalServerError, "streaming is not supported on this connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := stream.WriteEvent(w, ev); err != nil {
			h.logger.Debug().Err(err).Msg("client dropped the event stream")
			return
		}
		flusher.Flush()
	}
}

func (h *Backup) awaitOutcome(w http.ResponseWriter, events <-chan stream.Event) {
	var terminal stream.Event
	for ev := range events {
		if ev.Terminal() {
			terminal = ev
		}
	}

	switch terminal.Kind {
	case stream.KindComplete:
		response.WriteData(w, http.StatusCreated, stream.Result{
			Name:     terminal.Name,
			Provider: terminal.Provider,
			URL:      terminal.URL,
		})
	case stream.KindError:
		status := http.StatusInternalServerError
		if terminal.Code == string(backup.KindTimedOut) {
			status = http.StatusGatewayTimeout
		}
		response.WriteFailure(w, status, terminal.Message, terminal.ErrorDetails)
	default:
		// The run ended without a terminal event, which only happens when
		// the request context was canceled mid-pipeline.
		response.WriteFailure(w, http.StatusInternalServerError, "backup was interrupted", "")
	}
}
