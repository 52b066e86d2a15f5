package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"teledrive/internal/config"
	"teledrive/internal/drive"
	"teledrive/internal/stream"
)

// StreamFile serves `GET /stream/{fileID}` with byte-range semantics. The
// identifier is a drive record id, or a raw message id as a fallback so
// players can be pointed straight at stored messages.
func StreamFile(streamer *stream.Streamer, store *drive.Store, cfg *config.Config, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.AuthToken != "" && r.URL.Query().Get("token") != cfg.AuthToken {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "invalid token"})
			return
		}

		msgID, ok := resolveMessageID(store, chi.URLParam(r, "fileID"))
		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "file not found"})
			return
		}

		resolveCtx := r.Context()
		if cfg.ResolveTimeout > 0 {
			var cancel context.CancelFunc
			resolveCtx, cancel = context.WithTimeout(resolveCtx, cfg.ResolveTimeout)
			defer cancel()
		}
		meta, err := streamer.Resolve(resolveCtx, msgID)
		if err != nil {
			writeStreamError(w, r, err, 0)
			return
		}

		rng, partial, err := stream.ParseRange(r.Header.Get("Range"), meta.Size)
		if err != nil {
			w.Header().Set("Content-Range", stream.UnsatisfiableContentRange(meta.Size))
			render.Status(r, http.StatusRequestedRangeNotSatisfiable)
			render.JSON(w, r, map[string]string{"error": "requested range not satisfiable"})
			return
		}

		if err := streamer.Stream(r.Context(), w, meta, rng, partial); err != nil {
			if r.Context().Err() != nil {
				return
			}
			log.Error().Err(err).Int("messageID", msgID).Msg("Failed to start stream")
			writeStreamError(w, r, err, meta.Size)
			return
		}
	}
}

func resolveMessageID(store *drive.Store, fileID string) (int, bool) {
	if store != nil {
		if rec, err := store.GetFile(fileID); err == nil {
			return rec.MessageID, true
		}
	}
	if msgID, err := strconv.Atoi(fileID); err == nil && msgID > 0 {
		return msgID, true
	}
	return 0, false
}

// writeStreamError maps pre-header failures to status codes.
func writeStreamError(w http.ResponseWriter, r *http.Request, err error, fileSize int64) {
	switch {
	case errors.Is(err, stream.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "file not found"})
	case errors.Is(err, stream.ErrTransientUnavailable), errors.Is(err, context.DeadlineExceeded):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "backing store unavailable, retry later"})
	case errors.Is(err, stream.ErrInvalidRange):
		if fileSize > 0 {
			w.Header().Set("Content-Range", stream.UnsatisfiableContentRange(fileSize))
		}
		render.Status(r, http.StatusRequestedRangeNotSatisfiable)
		render.JSON(w, r, map[string]string{"error": "requested range not satisfiable"})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal server error"})
	}
}

func retryAfterSeconds(err error) int {
	var te *stream.TransientError
	if errors.As(err, &te) && te.Wait > 0 {
		return int(te.Wait.Seconds())
	}
	return 10
}
