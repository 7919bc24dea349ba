package handlers

import (
	"net/http"
	"time"

	"vridge/internal/models"
)

type RankingResponse struct {
	Filter     models.RankingFilter `json:"filter"`
	Podium     []models.User        `json:"podium"`
	Entries    []models.RankEntry   `json:"entries"`
	Total      int                  `json:"total"`
	ComputedAt time.Time            `json:"computedAt"`
}

// GetRanking serves ?filter=all|mine|type&type=X. Only complete rankings are
// returned.
func (h *Handlers) GetRanking(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := requireViewer(w, r)
	if !ok {
		return
	}

	var filter models.RankingFilter
	switch r.URL.Query().Get("filter") {
	case "", "all":
		filter = models.RankingAll
	case "mine":
		f, err := h.Ranking.FilterForViewer(r.Context(), viewerID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		filter = f
	case "type":
		userType := r.URL.Query().Get("type")
		if userType == "" {
			WriteError(w, "Не указан тип", http.StatusBadRequest)
			return
		}
		filter = models.RankingByType(userType)
	default:
		WriteError(w, "Неизвестный фильтр рейтинга", http.StatusBadRequest)
		return
	}

	users, err := h.Ranking.ComputeRanking(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	computedAt := time.Now()
	if snapshot, ok := h.Ranking.Snapshot(filter); ok {
		computedAt = snapshot.ComputedAt
	}

	board := models.NewRankingBoard(users)

	WriteSuccess(w, RankingResponse{
		Filter:     filter,
		Podium:     board.Podium,
		Entries:    board.Entries,
		Total:      len(users),
		ComputedAt: computedAt,
	}, http.StatusOK)
}
