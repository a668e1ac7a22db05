package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/ingest"
)

// maxEnvelopeBytes bounds the push notification body. Real envelopes are a
// few hundred bytes.
const maxEnvelopeBytes = 64 * 1024

// GmailNotification handles a Pub/Sub push delivery.
//
// Status codes drive Pub/Sub redelivery, so they are chosen deliberately:
// 400 only for a structurally malformed envelope (redelivering it can never
// help), 200 for everything the pipeline handled or chose to skip, and 500
// only for infrastructure failures where a redelivery is the retry path.
func (h *Handler) GmailNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	notification, err := ingest.DecodeEnvelope(body)
	if err != nil {
		if errors.Is(err, common.ErrMalformedEnvelope) {
			h.logger.Warn("malformed push envelope", "error", err)
			respondError(w, http.StatusBadRequest, "malformed envelope")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to decode envelope")
		return
	}

	result, err := h.controller.HandleNotification(r.Context(), notification)
	if err != nil {
		h.logger.Error("notification processing failed",
			"email", notification.EmailAddress, "error", err)
		respondError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"processed": result.ProcessedCount,
		"skipped":   result.SkippedCount,
		"failed":    result.FailedCount,
	})
}
