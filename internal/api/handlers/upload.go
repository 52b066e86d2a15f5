package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"teledrive/internal/drive"
	"teledrive/internal/stream"
)

// Upload streams the request body into the backing message store and
// creates a drive record for the stored blob.
func Upload(client stream.BlobClient, store *drive.Store, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "name query parameter is required"})
			return
		}
		if r.ContentLength <= 0 {
			render.Status(r, http.StatusLengthRequired)
			render.JSON(w, r, map[string]string{"error": "content length is required"})
			return
		}

		msgID, err := client.UploadFile(r.Context(), name, r.Body, r.ContentLength, func(done, total int64) {
			log.Debug().Str("name", name).Int64("done", done).Int64("total", total).Msg("Upload progress")
		})
		if err != nil {
			if errors.Is(err, stream.ErrTransientUnavailable) {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err)))
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, map[string]string{"error": "backing store unavailable, retry later"})
				return
			}
			log.Error().Err(err).Str("name", name).Msg("Upload failed")
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, map[string]string{"error": "upload failed"})
			return
		}

		file := &drive.File{
			Name:      name,
			FolderID:  r.URL.Query().Get("folder"),
			MessageID: msgID,
			Size:      r.ContentLength,
			MimeType:  stream.TypeByName(name),
		}
		if err := store.CreateFile(file); err != nil {
			log.Error().Err(err).Int("messageID", msgID).Msg("Uploaded blob but failed to create record")
			writeStoreError(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, file)
	}
}
