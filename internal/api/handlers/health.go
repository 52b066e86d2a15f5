package handlers

import (
	"net/http"

	"github.com/go-chi/render"

	"teledrive/internal/stream"
)

func Health(client stream.BlobClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorized, err := client.IsAuthorized(r.Context())
		if err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]interface{}{"status": "degraded", "error": err.Error()})
			return
		}
		render.JSON(w, r, map[string]interface{}{"status": "ok", "authorized": authorized})
	}
}
