package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handlers) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	h.writeUser(w, r, viewerID)
}

type PointResponse struct {
	Point int `json:"point"`
}

type TypeResponse struct {
	Type string `json:"type"`
}

// GetCurrentUserPoint re-reads the viewer's points, e.g. after a post.
func (h *Handlers) GetCurrentUserPoint(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	point, err := h.UserService.FetchUserPoint(r.Context(), viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, PointResponse{Point: point}, http.StatusOK)
}

func (h *Handlers) GetCurrentUserType(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	userType, err := h.UserService.FetchUserType(r.Context(), viewerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, TypeResponse{Type: userType}, http.StatusOK)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireViewer(w, r); !ok {
		return
	}

	h.writeUser(w, r, mux.Vars(r)["id"])
}

func (h *Handlers) writeUser(w http.ResponseWriter, r *http.Request, uid string) {
	user, err := h.UserService.FetchUser(r.Context(), uid)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, user, http.StatusOK)
}

func (h *Handlers) GetNotices(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireViewer(w, r); !ok {
		return
	}

	notices, err := h.NoticeService.FetchNotices(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, notices, http.StatusOK)
}
