package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"vridge/internal/models"
)

type FeedResponse struct {
	Posts   []models.Post `json:"posts"`
	Total   int           `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// GetFeed returns the viewer's feed, loading it on first use or when
// refresh=1 is passed. A cached feed gets its report flags re-checked.
func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	feed := h.Feeds.Get(viewerID)

	if r.URL.Query().Get("refresh") == "1" || !feed.Loaded() {
		if err := feed.Refresh(r.Context()); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	} else {
		feed.Reconcile(r.Context())
	}

	h.writeFeed(w, r, feed.Posts(), feed.Total())
}

func (h *Handlers) MoreFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	feed := h.Feeds.Get(viewerID)
	if err := feed.More(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeFeed(w, r, feed.Posts(), feed.Total())
}

func (h *Handlers) writeFeed(w http.ResponseWriter, r *http.Request, posts []models.Post, total int) {
	h.resolvePhotos(r.Context(), posts)

	WriteSuccess(w, FeedResponse{
		Posts:   posts,
		Total:   total,
		HasMore: len(posts) < total,
	}, http.StatusOK)
}

// resolvePhotos swaps stored object names for links clients can open.
// A photo that cannot be signed keeps its object name.
func (h *Handlers) resolvePhotos(ctx context.Context, posts []models.Post) {
	if h.Photos == nil {
		return
	}

	for i := range posts {
		for j, objectName := range posts[i].Photos {
			url, err := h.Photos.PhotoURL(ctx, objectName)
			if err != nil {
				h.log.Warn("Не удалось подписать ссылку на фото", zap.String("object", objectName), zap.Error(err))
				continue
			}
			posts[i].Photos[j] = url
		}
	}
}
