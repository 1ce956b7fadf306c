package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/officer-sync/syncjob"
	"github.com/onnwee/officer-sync/telemetry"
)

// HandleRuns lists recent sync runs. Without a database it answers 404.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run history disabled (DB_DSN not set)"})
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	runs, err := h.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list sync runs", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

type channelInfo struct {
	syncjob.Endpoint
	ChannelID   string `json:"channelId,omitempty"`
	Configured  bool   `json:"configured"`
	ChannelName string `json:"channelName,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HandleChannels describes the endpoint catalog and the channel each key maps to.
// With ?resolve=1 every configured channel is looked up on Discord.
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	resolve := r.URL.Query().Get("resolve") == "1"
	channels := h.cfg.Channels
	if h.job != nil && h.job.Channels != nil {
		channels = h.job.Channels
	}
	out := make([]channelInfo, 0, len(syncjob.Catalog()))
	for _, ep := range syncjob.Catalog() {
		info := channelInfo{Endpoint: ep, ChannelID: channels[ep.ChannelKey]}
		info.Configured = info.ChannelID != ""
		if resolve && info.Configured && h.job != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
			ch, err := h.job.Upstream.FetchChannel(ctx, info.ChannelID)
			cancel()
			if err != nil {
				info.Error = err.Error()
			} else {
				info.ChannelName = ch.Name
			}
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}
