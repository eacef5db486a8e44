package models

import (
	"time"

	"github.com/google/uuid"
)

// NoteEmbedding is the stored vector for one note. Provider records which
// backend produced it, since vectors from different backends are not comparable.
type NoteEmbedding struct {
	NoteID    uuid.UUID `json:"note_id" db:"note_id"`
	Provider  string    `json:"provider" db:"provider"`
	Embedding []float64 `json:"-" db:"embedding"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the NoteEmbedding model
func (NoteEmbedding) TableName() string {
	return "note_embeddings"
}

// NoteMatch is one semantic search hit
type NoteMatch struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
}
