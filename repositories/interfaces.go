package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/amebo/notes-backend/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// ProfileRepository handles profile subscription and usage data
type ProfileRepository interface {
	// GetByID retrieves a profile, wrapping ErrNotFound when absent
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)

	// IncrementAIUsage atomically adds one to the monthly AI usage counter
	IncrementAIUsage(ctx context.Context, id uuid.UUID) error

	// UpdateSubscription records a completed checkout on the profile
	UpdateSubscription(ctx context.Context, id uuid.UUID, update models.SubscriptionUpdate) error

	// UpdateTierBySubscription changes tier and status for whichever profile
	// owns subscriptionID. It returns the number of rows changed.
	UpdateTierBySubscription(ctx context.Context, subscriptionID, tier, status string) (int64, error)

	// ResetExpiredUsage zeroes usage for every profile whose window closed
	// before now and opens a new window. It returns the number of profiles reset.
	ResetExpiredUsage(ctx context.Context, now time.Time) (int64, error)
}

// EmbeddingRepository stores note vectors and runs similarity search
type EmbeddingRepository interface {
	// Upsert writes the vector for noteID, replacing any previous one. It wraps
	// ErrNotFound when userID does not own the note.
	Upsert(ctx context.Context, noteID, userID uuid.UUID, provider string, vector []float64) error

	// Search returns up to count of userID's notes whose similarity to vector exceeds threshold
	Search(ctx context.Context, userID uuid.UUID, vector []float64, threshold float64, count int) ([]*models.NoteMatch, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Profiles   ProfileRepository
	Embeddings EmbeddingRepository
}
