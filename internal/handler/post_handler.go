package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"vridge/internal/models"
	"vridge/internal/service"
)

type AmendPostRequest struct {
	Caption string `json:"caption" validate:"max=200"`
}

// UploadPost accepts multipart/form-data with a "caption" field and one or
// more "photos" files.
func (h *Handlers) UploadPost(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	// setting the size limit from the config
	r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(h.Cfg.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, fmt.Sprintf("Файл слишком большой (макс. %s)",
				humanize.IBytes(uint64(h.Cfg.MaxUploadSize))), http.StatusRequestEntityTooLarge)
		} else {
			WriteError(w, "Ошибка при обработке формы", http.StatusBadRequest)
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["photos"]
	photos := make([]service.PhotoUpload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			WriteError(w, "Не удалось получить файл", http.StatusBadRequest)
			return
		}
		defer func(f multipart.File) { f.Close() }(file)

		photos = append(photos, service.PhotoUpload{
			FileName: header.Filename,
			Size:     header.Size,
			Body:     file,
		})
	}

	post, err := h.PostService.UploadPost(r.Context(), service.UploadPostRequest{
		AuthorID: viewerID,
		Caption:  r.FormValue("caption"),
		Photos:   photos,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, post, http.StatusCreated)
}

func (h *Handlers) AmendPost(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	var req AmendPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, "Неверный формат запроса", http.StatusBadRequest)
		return
	}

	if err := h.Validate.Struct(req); err != nil {
		WriteError(w, fmt.Sprintf("Подпись длиннее %d символов", models.MaxCaptionLength), http.StatusBadRequest)
		return
	}

	post, err := h.PostService.AmendPost(r.Context(), service.AmendPostRequest{
		PostID:   mux.Vars(r)["id"],
		ViewerID: viewerID,
		Caption:  req.Caption,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, post, http.StatusOK)
}

func (h *Handlers) ReportPost(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	postID := mux.Vars(r)["id"]
	if err := h.PostService.ReportPost(r.Context(), postID, viewerID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.Feeds.Get(viewerID).ApplyReport(postID)

	WriteSuccess(w, MessageResponse{Message: "Жалоба отправлена"}, http.StatusOK)
}
