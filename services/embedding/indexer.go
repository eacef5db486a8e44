package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amebo/notes-backend/repositories"
	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/providers"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when the buffer has no room
	ErrQueueFull = errors.New("embedding queue full")

	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("embedding indexer closed")
)

// Embedder produces a vector and names the backend that produced it
type Embedder interface {
	GenerateEmbeddingFrom(ctx context.Context, text string) (ai.Embedding, ai.ProviderName, error)
}

// Job asks for one note to be (re)indexed
type Job struct {
	ID     uuid.UUID
	NoteID uuid.UUID
	UserID uuid.UUID
	Text   string
}

// Config holds configuration for the Indexer
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration // multiplied by the attempt number
	JobTimeout  time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Workers:     2,
		QueueSize:   256,
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
		JobTimeout:  30 * time.Second,
	}
}

// Stats is a snapshot of indexer counters
type Stats struct {
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Indexed   int64 `json:"indexed"`
	Failed    int64 `json:"failed"`
	Workers   int   `json:"workers"`
	IsRunning bool  `json:"isRunning"`
}

// Indexer embeds notes in the background and stores the vectors
type Indexer struct {
	embedder Embedder
	repo     repositories.EmbeddingRepository
	cfg      Config
	logger   *zap.Logger

	jobs   chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
	indexed int64
	failed  int64
}

// NewIndexer creates an indexer; call Start before submitting
func NewIndexer(embedder Embedder, repo repositories.EmbeddingRepository, cfg Config, logger *zap.Logger) *Indexer {
	def := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Indexer{
		embedder: embedder,
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan Job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers
func (x *Indexer) Start() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrClosed
	}
	if x.started {
		return fmt.Errorf("embedding indexer already started")
	}

	for i := 0; i < x.cfg.Workers; i++ {
		x.wg.Add(1)
		go x.worker(i)
	}

	x.started = true
	x.logger.Info("started embedding indexer",
		zap.Int("workers", x.cfg.Workers),
		zap.Int("queue_size", x.cfg.QueueSize),
		zap.Int("max_attempts", x.cfg.MaxAttempts))
	return nil
}

// Submit queues a job without blocking and returns its ID
func (x *Indexer) Submit(job Job) (uuid.UUID, error) {
	if job.NoteID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("embedding job needs a note id")
	}
	if job.UserID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("embedding job for note %s needs a user id", job.NoteID)
	}
	if strings.TrimSpace(job.Text) == "" {
		return uuid.Nil, fmt.Errorf("embedding job for note %s has no text", job.NoteID)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return uuid.Nil, ErrClosed
	}

	select {
	case x.jobs <- job:
		return job.ID, nil
	default:
		x.logger.Warn("embedding queue full, rejecting job",
			zap.String("note_id", job.NoteID.String()))
		return uuid.Nil, ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
// If ctx ends first, in-flight calls are cancelled and ctx's error is returned.
func (x *Indexer) Close(ctx context.Context) error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closed = true
	started := x.started
	close(x.jobs)
	x.mu.Unlock()

	if !started {
		x.cancel()
		return nil
	}

	x.logger.Info("stopping embedding indexer", zap.Int("pending_jobs", len(x.jobs)))

	done := make(chan struct{})
	go func() {
		x.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		x.cancel()
		x.logger.Info("embedding indexer stopped")
		return nil
	case <-ctx.Done():
		x.cancel()
		<-done
		return fmt.Errorf("embedding indexer drain interrupted: %w", ctx.Err())
	}
}

// GetStats returns a snapshot of queue depth and counters
func (x *Indexer) GetStats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()

	return Stats{
		Queued:    len(x.jobs),
		Capacity:  cap(x.jobs),
		Indexed:   x.indexed,
		Failed:    x.failed,
		Workers:   x.cfg.Workers,
		IsRunning: x.started && !x.closed,
	}
}

func (x *Indexer) worker(id int) {
	defer x.wg.Done()

	x.logger.Debug("embedding worker started", zap.Int("worker_id", id))

	for job := range x.jobs {
		err := x.process(job)

		x.mu.Lock()
		if err != nil {
			x.failed++
		} else {
			x.indexed++
		}
		x.mu.Unlock()

		if err != nil {
			x.logger.Error("giving up on embedding job",
				zap.Int("worker_id", id),
				zap.String("job_id", job.ID.String()),
				zap.String("note_id", job.NoteID.String()),
				zap.Error(err))
		}
	}

	x.logger.Debug("embedding worker stopped", zap.Int("worker_id", id))
}

// process retries a failed attempt after attempt*RetryDelay
func (x *Indexer) process(job Job) error {
	var err error
	for attempt := 1; attempt <= x.cfg.MaxAttempts; attempt++ {
		if err = x.index(job); err == nil {
			return nil
		}
		if permanent(err) {
			return fmt.Errorf("not retrying: %w", err)
		}
		if attempt == x.cfg.MaxAttempts {
			break
		}

		x.logger.Warn("embedding attempt failed, retrying",
			zap.String("note_id", job.NoteID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		timer := time.NewTimer(time.Duration(attempt) * x.cfg.RetryDelay)
		select {
		case <-timer.C:
		case <-x.ctx.Done():
			timer.Stop()
			return fmt.Errorf("cancelled after %d attempts: %w", attempt, err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", x.cfg.MaxAttempts, err)
}

func (x *Indexer) index(job Job) error {
	ctx, cancel := context.WithTimeout(x.ctx, x.cfg.JobTimeout)
	defer cancel()

	vector, source, err := x.embedder.GenerateEmbeddingFrom(ctx, job.Text)
	if err != nil {
		return fmt.Errorf("generate embedding: %w", err)
	}

	if err := x.repo.Upsert(ctx, job.NoteID, job.UserID, string(source), vector); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}

	x.logger.Debug("note indexed",
		zap.String("note_id", job.NoteID.String()),
		zap.String("provider", string(source)),
		zap.Int("dimensions", len(vector)))
	return nil
}

// permanent reports failures that another attempt cannot fix
func permanent(err error) bool {
	if errors.Is(err, repositories.ErrNotFound) || providers.IsUnsupported(err) {
		return true
	}
	if provErr, ok := providers.AsProviderError(err); ok {
		return provErr.Code == providers.CodeMissingCredentials || provErr.Code == providers.CodeUnsupported
	}
	return false
}
