package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewResetScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := NewResetScheduler(new(MockProfileRepository), "every tuesday", zap.NewNop())
	assert.Error(t, err)

	for _, schedule := range []string{"@daily", "@hourly", "0 3 * * *"} {
		_, err := NewResetScheduler(new(MockProfileRepository), schedule, zap.NewNop())
		assert.NoError(t, err, schedule)
	}
}

func TestResetScheduler_RunOnce(t *testing.T) {
	repo := new(MockProfileRepository)
	s, err := NewResetScheduler(repo, "@daily", zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	repo.On("ResetExpiredUsage", mock.Anything, now).Return(int64(4), nil).Once()
	count, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	repo.On("ResetExpiredUsage", mock.Anything, now).Return(int64(0), errors.New("db down")).Once()
	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)

	repo.AssertExpectations(t)
}

func TestResetScheduler_StartStop(t *testing.T) {
	s, err := NewResetScheduler(new(MockProfileRepository), "@monthly", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
