package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"teledrive/internal/drive"
)

type createFileRequest struct {
	Name      string `json:"name"`
	FolderID  string `json:"folderId"`
	MessageID int    `json:"messageId"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
}

func ListFiles(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := store.ListFiles(r.URL.Query().Get("folder"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.JSON(w, r, files)
	}
}

func CreateFile(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createFileRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Name == "" || req.MessageID <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "name and messageId are required"})
			return
		}

		file := &drive.File{
			Name:      req.Name,
			FolderID:  req.FolderID,
			MessageID: req.MessageID,
			Size:      req.Size,
			MimeType:  req.MimeType,
		}
		if err := store.CreateFile(file); err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, file)
	}
}

func GetFile(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := store.GetFile(chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.JSON(w, r, file)
	}
}

func PatchFile(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch drive.FilePatch
		if err := render.DecodeJSON(r.Body, &patch); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "invalid request body"})
			return
		}

		file, err := store.UpdateFile(chi.URLParam(r, "id"), patch)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.JSON(w, r, file)
	}
}

func DeleteFile(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteFile(chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.NoContent(w, r)
	}
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

func ListFolders(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folders, err := store.ListFolders(r.URL.Query().Get("parent"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.JSON(w, r, folders)
	}
}

func CreateFolder(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createFolderRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil || req.Name == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "folder name is required"})
			return
		}

		folder := &drive.Folder{Name: req.Name, ParentID: req.ParentID}
		if err := store.CreateFolder(folder); err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, folder)
	}
}

func DeleteFolder(store *drive.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteFolder(chi.URLParam(r, "id")); err != nil {
			writeStoreError(w, r, err)
			return
		}
		render.NoContent(w, r)
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, drive.ErrRecordNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "record not found"})
	case errors.Is(err, drive.ErrFolderNotEmpty):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, map[string]string{"error": "folder is not empty"})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal server error"})
	}
}
