package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amebo/notes-backend/models"
	"github.com/amebo/notes-backend/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlDB, zap.NewNop()), mock
}

var profileColumns = []string{
	"id", "email", "role", "subscription_tier", "subscription_status", "subscription_id",
	"payment_provider", "customer_id", "ai_usage_count", "ai_usage_reset_at", "created_at", "updated_at",
}

func TestProfileRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	reset := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT (.+) FROM profiles WHERE id = \\$1$").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow(id.String(), "a@b.co", "user", "pro", "active", "sub_1", nil, "cus_1", 3, reset, reset, reset))

		profile, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "pro", profile.SubscriptionTier)
		assert.Equal(t, 3, profile.AIUsageCount)
		require.NotNil(t, profile.SubscriptionID)
		assert.Equal(t, "sub_1", *profile.SubscriptionID)
		assert.Nil(t, profile.PaymentProvider)
		require.NotNil(t, profile.CustomerID)
		assert.Equal(t, "cus_1", *profile.CustomerID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT (.+) FROM profiles").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(profileColumns))

		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("locks row inside a transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db, zap.NewNop())
		tm := NewTransactionManager(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectQuery("FROM profiles WHERE id = \\$1 FOR UPDATE").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(profileColumns).
				AddRow(id.String(), "a@b.co", "admin", "free", "active", nil, nil, nil, 0, reset, reset, reset))
		mock.ExpectCommit()

		err := tm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			profile, err := repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			assert.True(t, profile.IsAdmin())
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProfileRepository_IncrementAIUsage(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	db, mock := newMockDB(t)
	repo := NewProfileRepository(db, zap.NewNop())

	mock.ExpectExec("SET ai_usage_count = ai_usage_count \\+ 1").
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.IncrementAIUsage(ctx, id))

	mock.ExpectExec("SET ai_usage_count = ai_usage_count \\+ 1").
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.IncrementAIUsage(ctx, id), repositories.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_UpdateSubscription(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("keeps usage", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db, zap.NewNop())

		mock.ExpectExec("UPDATE profiles").
			WithArgs(id, "team", "active", "sub_1", "stripe", "cus_1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateSubscription(ctx, id, models.SubscriptionUpdate{
			Tier: "team", Status: "active", SubscriptionID: "sub_1", CustomerID: "cus_1", Provider: "stripe",
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("resets usage", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewProfileRepository(db, zap.NewNop())

		mock.ExpectExec("ai_usage_count = 0").
			WithArgs(id, "pro", "active", "SUB_1", "paystack", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateSubscription(ctx, id, models.SubscriptionUpdate{
			Tier: "pro", Status: "active", SubscriptionID: "SUB_1", Provider: "paystack", ResetUsage: true,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProfileRepository_UpdateSubscription_KeepsStoredIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db, zap.NewNop())
	id := uuid.New()

	mock.ExpectExec("subscription_id = COALESCE\\(NULLIF\\(\\$4, ''\\), subscription_id\\)").
		WithArgs(id, "team", "active", "", "paystack", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateSubscription(context.Background(), id, models.SubscriptionUpdate{
		Tier: "team", Status: "active", Provider: "paystack",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_UpdateTierBySubscription(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db, zap.NewNop())

	mock.ExpectExec("WHERE subscription_id = \\$1").
		WithArgs("sub_9", "free", "canceled", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows, err := repo.UpdateTierBySubscription(context.Background(), "sub_9", "free", "canceled")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_ResetExpiredUsage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db, zap.NewNop())
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("WHERE ai_usage_reset_at < \\$1").
		WithArgs(now, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 7))

	rows, err := repo.ResetExpiredUsage(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddingRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	noteID := uuid.New()
	owner := uuid.New()

	t.Run("owned note", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewEmbeddingRepository(db, zap.NewNop())

		mock.ExpectExec("INSERT INTO note_embeddings (.+) FROM notes n WHERE n.id = \\$1 AND n.user_id = \\$2").
			WithArgs(noteID.String(), owner.String(), "gemini", "[0.5,-1,0.25]", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Upsert(ctx, noteID, owner, "gemini", []float64{0.5, -1, 0.25}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("someone else's note", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewEmbeddingRepository(db, zap.NewNop())
		intruder := uuid.New()

		mock.ExpectExec("INSERT INTO note_embeddings").
			WithArgs(noteID.String(), intruder.String(), "gemini", "[1]", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Upsert(ctx, noteID, intruder, "gemini", []float64{1})
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty vector", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewEmbeddingRepository(db, zap.NewNop())
		assert.Error(t, repo.Upsert(ctx, noteID, owner, "gemini", nil))
	})
}

func TestEmbeddingRepository_Search(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmbeddingRepository(db, zap.NewNop())
	userID := uuid.New()
	noteID := uuid.New()

	mock.ExpectQuery("FROM match_notes\\(\\$1::vector, \\$2, \\$3, \\$4\\)").
		WithArgs("[0.1,0.2]", 0.7, 10, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "similarity"}).
			AddRow(noteID.String(), "Groceries", "milk", 0.91))

	matches, err := repo.Search(context.Background(), userID, []float64{0.1, 0.2}, 0.7, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, noteID, matches[0].ID)
	assert.Equal(t, 0.91, matches[0].Similarity)

	mock.ExpectQuery("FROM match_notes").WillReturnError(errors.New("function match_notes does not exist"))
	_, err = repo.Search(context.Background(), userID, []float64{0.1}, 0.7, 10)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[]", VectorLiteral(nil))
	assert.Equal(t, "[1,0.125,-0.00000035]", VectorLiteral([]float64{1, 0.125, -0.00000035}))
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := Wrap(sqlDB, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	assert.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, db.HealthCheck(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
