package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amebo/notes-backend/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Wrap adopts an already-open pool, such as a sqlmock connection
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// schema creates the tables this service owns. Notes are written by the web
// app; only the columns read by match_notes are declared here.
const schema = `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		subscription_tier VARCHAR(20) NOT NULL DEFAULT 'free',
		subscription_status VARCHAR(20) NOT NULL DEFAULT 'active',
		subscription_id VARCHAR(255),
		payment_provider VARCHAR(20),
		ai_usage_count INTEGER NOT NULL DEFAULT 0,
		ai_usage_reset_at TIMESTAMPTZ NOT NULL DEFAULT (NOW() + INTERVAL '1 month'),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS notes (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		is_archived BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS note_embeddings (
		note_id UUID PRIMARY KEY REFERENCES notes(id) ON DELETE CASCADE,
		provider VARCHAR(20) NOT NULL,
		embedding vector NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE OR REPLACE FUNCTION match_notes(
		query_embedding vector,
		match_threshold FLOAT,
		match_count INT,
		p_user_id UUID
	)
	RETURNS TABLE (id UUID, title TEXT, content TEXT, similarity FLOAT)
	LANGUAGE sql STABLE
	AS $$
		SELECT n.id, n.title, n.content, 1 - (e.embedding <=> query_embedding) AS similarity
		FROM note_embeddings e
		JOIN notes n ON n.id = e.note_id
		WHERE n.user_id = p_user_id
		  AND vector_dims(e.embedding) = vector_dims(query_embedding)
		  AND 1 - (e.embedding <=> query_embedding) > match_threshold
		ORDER BY similarity DESC
		LIMIT match_count;
	$$;

	CREATE INDEX IF NOT EXISTS idx_profiles_subscription_id ON profiles(subscription_id);
	CREATE INDEX IF NOT EXISTS idx_profiles_ai_usage_reset_at ON profiles(ai_usage_reset_at);
	CREATE INDEX IF NOT EXISTS idx_notes_user_id ON notes(user_id);
`

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
