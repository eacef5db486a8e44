package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amebo/notes-backend/repositories"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ResetScheduler periodically clears AI usage for profiles whose monthly window has closed
type ResetScheduler struct {
	profiles repositories.ProfileRepository
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewResetScheduler validates schedule (standard five-field cron or a descriptor like @daily)
func NewResetScheduler(profiles repositories.ProfileRepository, schedule string, logger *zap.Logger) (*ResetScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid usage reset schedule %q: %w", schedule, err)
	}

	return &ResetScheduler{
		profiles: profiles,
		schedule: schedule,
		timeout:  time.Minute,
		logger:   logger.With(zap.String("job", "usage_reset")),
		now:      time.Now,
	}, nil
}

// Start registers the job and starts the cron loop
func (s *ResetScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("failed to register usage reset job: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.logger.Info("usage reset scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the loop and waits for a running reset to finish or ctx to end
func (s *ResetScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		s.logger.Info("usage reset scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("usage reset scheduler stop timed out")
	}
}

// RunOnce resets every expired window now and returns how many profiles were reset
func (s *ResetScheduler) RunOnce(ctx context.Context) (int64, error) {
	count, err := s.profiles.ResetExpiredUsage(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *ResetScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	count, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("usage reset failed", zap.Error(err))
		return
	}
	s.logger.Info("usage reset completed", zap.Int64("profiles_reset", count))
}
