package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amebo/notes-backend/models"
	"github.com/amebo/notes-backend/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProfileRepository implements the repositories.ProfileRepository interface
type ProfileRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB, logger *zap.Logger) repositories.ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// GetByID retrieves a profile by ID. Inside a transaction the row is locked
// until commit so read-modify-write callers do not race.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, email, role, subscription_tier, subscription_status, subscription_id,
		       payment_provider, customer_id, ai_usage_count, ai_usage_reset_at, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	if _, ok := inTransaction(ctx); ok {
		query += " FOR UPDATE"
	}

	var (
		profile        models.Profile
		subscriptionID sql.NullString
		provider       sql.NullString
		customerID     sql.NullString
	)

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.Email,
		&profile.Role,
		&profile.SubscriptionTier,
		&profile.SubscriptionStatus,
		&subscriptionID,
		&provider,
		&customerID,
		&profile.AIUsageCount,
		&profile.AIUsageResetAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.SubscriptionID = nullableString(subscriptionID)
	profile.PaymentProvider = nullableString(provider)
	profile.CustomerID = nullableString(customerID)
	return &profile, nil
}

// IncrementAIUsage adds one to the usage counter in a single statement
func (r *ProfileRepository) IncrementAIUsage(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE profiles
		SET ai_usage_count = ai_usage_count + 1,
		    updated_at = $2
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, r.now())
	if err != nil {
		return fmt.Errorf("failed to increment ai usage: %w", err)
	}
	return expectRow(result, id)
}

// UpdateSubscription stores the tier from a completed checkout. An empty
// subscription or customer ID keeps the stored one.
func (r *ProfileRepository) UpdateSubscription(ctx context.Context, id uuid.UUID, update models.SubscriptionUpdate) error {
	query := `
		UPDATE profiles
		SET subscription_tier = $2,
		    subscription_status = $3,
		    subscription_id = COALESCE(NULLIF($4, ''), subscription_id),
		    payment_provider = COALESCE(NULLIF($5, ''), payment_provider),
		    customer_id = COALESCE(NULLIF($6, ''), customer_id),
		    updated_at = $7`
	now := r.now()
	args := []interface{}{id, update.Tier, update.Status, update.SubscriptionID, update.Provider, update.CustomerID, now}

	if update.ResetUsage {
		query += `,
		    ai_usage_count = 0,
		    ai_usage_reset_at = $8`
		args = append(args, models.NextUsageReset(now))
	}
	query += `
		WHERE id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if err := expectRow(result, id); err != nil {
		return err
	}

	r.logger.Debug("subscription updated",
		zap.String("profile_id", id.String()),
		zap.String("tier", update.Tier),
		zap.Bool("usage_reset", update.ResetUsage),
	)
	return nil
}

// UpdateTierBySubscription changes tier and status for the owner of subscriptionID
func (r *ProfileRepository) UpdateTierBySubscription(ctx context.Context, subscriptionID, tier, status string) (int64, error) {
	query := `
		UPDATE profiles
		SET subscription_tier = $2,
		    subscription_status = $3,
		    updated_at = $4
		WHERE subscription_id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, subscriptionID, tier, status, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to update tier by subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ResetExpiredUsage zeroes usage whose window closed before now
func (r *ProfileRepository) ResetExpiredUsage(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE profiles
		SET ai_usage_count = 0,
		    ai_usage_reset_at = $2,
		    updated_at = $1
		WHERE ai_usage_reset_at < $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, now, models.NextUsageReset(now))
	if err != nil {
		return 0, fmt.Errorf("failed to reset expired usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func expectRow(result sql.Result, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("profile %s: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
