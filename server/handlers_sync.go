package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/officer-sync/progress"
	"github.com/onnwee/officer-sync/syncjob"
	"github.com/onnwee/officer-sync/telemetry"
)

// maxSyncBody caps the request body; a roster is a few hundred members at most.
const maxSyncBody = 10 << 20

// HandleSyncStream runs one sync job and streams its events as Server-Sent Events.
// Every outcome, bad input included, is reported inside the stream with status 200.
func (h *Handlers) HandleSyncStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if h.job == nil {
		http.Error(w, "sync not configured", http.StatusServiceUnavailable)
		return
	}
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "sync_stream"))

	r.Body = http.MaxBytesReader(w, r.Body, maxSyncBody)
	req, decodeErr := syncjob.DecodeRequest(r.Body)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := progress.NewStreamWriter(w)
	if decodeErr != nil {
		log.Warn("sync request rejected", slog.String("reason", decodeErr.Error()))
		telemetry.IncCounter(telemetry.JobsStarted)
		telemetry.IncLabeled(telemetry.JobsFailed, "validation")
		if err := stream.Emit(progress.Error(decodeErr.Error())); err != nil {
			log.Warn("failed to write SSE event", slog.Any("err", err))
		}
		return
	}

	if err := h.job.Run(r.Context(), req, stream); err != nil && !syncjob.IsValidation(err) {
		log.Debug("sync stream ended with error", slog.Any("err", err))
	}
}
