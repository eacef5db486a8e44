package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/amebo/notes-backend/models"
	"github.com/amebo/notes-backend/services/embedding"
	"github.com/amebo/notes-backend/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoteSearcher runs semantic search over a user's indexed notes
type NoteSearcher interface {
	Search(ctx context.Context, userID uuid.UUID, query string, threshold float64, count int) ([]*models.NoteMatch, error)
}

// SearchResponse is returned by GET /search
type SearchResponse struct {
	Results []*models.NoteMatch `json:"results"`
}

// SearchHandler handles semantic note search
type SearchHandler struct {
	searcher NoteSearcher
	logger   *zap.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(searcher NoteSearcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, logger: logger}
}

// HandleSearch handles GET /search?q=
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		_ = utils.WriteOK(w, SearchResponse{Results: []*models.NoteMatch{}})
		return
	}

	matches, err := h.searcher.Search(r.Context(), userID, query, embedding.DefaultMatchThreshold, embedding.DefaultMatchCount)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if matches == nil {
		matches = []*models.NoteMatch{}
	}

	_ = utils.WriteOK(w, SearchResponse{Results: matches})
}
