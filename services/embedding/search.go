package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/amebo/notes-backend/models"
	"github.com/amebo/notes-backend/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMatchThreshold = 0.7
	DefaultMatchCount     = 10
)

// Searcher answers semantic queries over a user's indexed notes
type Searcher struct {
	embedder Embedder
	repo     repositories.EmbeddingRepository
	logger   *zap.Logger
}

// NewSearcher creates a Searcher
func NewSearcher(embedder Embedder, repo repositories.EmbeddingRepository, logger *zap.Logger) *Searcher {
	return &Searcher{embedder: embedder, repo: repo, logger: logger}
}

// Search embeds query and returns the user's closest notes. A blank query
// matches nothing and makes no provider call.
func (s *Searcher) Search(ctx context.Context, userID uuid.UUID, query string, threshold float64, count int) ([]*models.NoteMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.NoteMatch{}, nil
	}
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	if count <= 0 {
		count = DefaultMatchCount
	}

	vector, source, err := s.embedder.GenerateEmbeddingFrom(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.repo.Search(ctx, userID, vector, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}

	s.logger.Debug("semantic search",
		zap.String("user_id", userID.String()),
		zap.String("provider", string(source)),
		zap.Int("matches", len(matches)))
	return matches, nil
}
