package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amebo/notes-backend/models"
	"github.com/amebo/notes-backend/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmbeddingRepository implements the repositories.EmbeddingRepository interface
type EmbeddingRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEmbeddingRepository creates a new embedding repository
func NewEmbeddingRepository(db *DB, logger *zap.Logger) repositories.EmbeddingRepository {
	return &EmbeddingRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the vector for a note owned by userID, replacing the previous one
func (r *EmbeddingRepository) Upsert(ctx context.Context, noteID, userID uuid.UUID, provider string, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty embedding for note %s", noteID)
	}

	query := `
		INSERT INTO note_embeddings (note_id, provider, embedding, updated_at)
		SELECT n.id, $3, $4::vector, $5
		FROM notes n
		WHERE n.id = $1 AND n.user_id = $2
		ON CONFLICT (note_id) DO UPDATE
		SET provider = EXCLUDED.provider,
		    embedding = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, noteID, userID, provider, VectorLiteral(vector), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("note %s for user %s: %w", noteID, userID, repositories.ErrNotFound)
	}

	r.logger.Debug("embedding stored",
		zap.String("note_id", noteID.String()),
		zap.String("provider", provider),
		zap.Int("dimensions", len(vector)),
	)
	return nil
}

// Search runs match_notes for the user's notes
func (r *EmbeddingRepository) Search(ctx context.Context, userID uuid.UUID, vector []float64, threshold float64, count int) ([]*models.NoteMatch, error) {
	query := `
		SELECT id, title, content, similarity
		FROM match_notes($1::vector, $2, $3, $4)
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, VectorLiteral(vector), threshold, count, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.NoteMatch, 0, count)
	for rows.Next() {
		match := &models.NoteMatch{}
		if err := rows.Scan(&match.ID, &match.Title, &match.Content, &match.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan note match: %w", err)
		}
		matches = append(matches, match)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}

	return matches, nil
}

// VectorLiteral formats v in pgvector's text input form, e.g. [0.1,0.2]
func VectorLiteral(v []float64) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
