package api

import (
	"net/http"

	"crypto-signals/internal/model"
	"crypto-signals/internal/signals"
)

const maxSignalListLimit = 1000

// handleTelegramSignals serves GET (list), POST (ingest) and DELETE (clear)
// on /api/signals/telegram.
func (s *Server) handleTelegramSignals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	if s.opts.Signals == nil {
		writeError(w, http.StatusServiceUnavailable, "signal buffer not configured")
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		list, count, err := s.opts.Signals.List(ctx, limitParam(r, signals.DefaultListLimit, maxSignalListLimit))
		if err != nil {
			writeErr(w, err)
			return
		}
		if list == nil {
			list = []model.TelegramSignal{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"signals": list,
			"count":   count,
		})

	case http.MethodPost:
		// Validation runs after a raw_message-only body is parsed.
		var sig model.TelegramSignal
		if err := readJSON(w, r, &sig); err != nil {
			writeErr(w, err)
			return
		}
		stored, err := s.opts.Signals.Ingest(ctx, sig)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"signal":  stored,
		})

	case http.MethodDelete:
		if err := s.opts.Signals.Clear(ctx); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.opts.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "websocket hub not configured")
		return
	}
	s.opts.Hub.ServeWS(w, r)
}
