package embedding

import (
	"context"
	"testing"

	"github.com/amebo/notes-backend/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingRepo struct {
	fakeRepo
	threshold float64
	count     int
	vector    []float64
}

func (r *recordingRepo) Search(ctx context.Context, userID uuid.UUID, vector []float64, threshold float64, count int) ([]*models.NoteMatch, error) {
	r.threshold, r.count, r.vector = threshold, count, vector
	return []*models.NoteMatch{{ID: uuid.New(), Title: "Groceries", Similarity: 0.9}}, nil
}

func TestSearcher_Search(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := &recordingRepo{}
	s := NewSearcher(embedder, repo, zap.NewNop())

	matches, err := s.Search(context.Background(), uuid.New(), "  milk  ", 0, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, DefaultMatchThreshold, repo.threshold)
	assert.Equal(t, DefaultMatchCount, repo.count)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, repo.vector)
}

func TestSearcher_BlankQuery(t *testing.T) {
	embedder := &fakeEmbedder{}
	s := NewSearcher(embedder, &recordingRepo{}, zap.NewNop())

	matches, err := s.Search(context.Background(), uuid.New(), " ", 0.7, 10)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
	assert.Zero(t, embedder.callCount())
}
