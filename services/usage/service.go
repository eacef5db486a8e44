package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amebo/notes-backend/models"
	"github.com/amebo/notes-backend/repositories"
	"github.com/amebo/notes-backend/services"
	"github.com/amebo/notes-backend/services/payments"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Unlimited marks a limit with no ceiling
const Unlimited = -1

// Limits is what a subscription tier allows per monthly window
type Limits struct {
	MaxNotes       int  `json:"maxNotes"`
	MaxAISummaries int  `json:"maxAiSummaries"`
	CanTranscribe  bool `json:"canTranscribe"`
	CanSearch      bool `json:"canSearch"`
}

var planLimits = map[payments.Tier]Limits{
	payments.TierFree:       {MaxNotes: 50, MaxAISummaries: 5, CanTranscribe: false, CanSearch: true},
	payments.TierPro:        {MaxNotes: Unlimited, MaxAISummaries: Unlimited, CanTranscribe: true, CanSearch: true},
	payments.TierTeam:       {MaxNotes: Unlimited, MaxAISummaries: Unlimited, CanTranscribe: true, CanSearch: true},
	payments.TierEnterprise: {MaxNotes: Unlimited, MaxAISummaries: Unlimited, CanTranscribe: true, CanSearch: true},
}

// LimitsFor returns the limits of tier; unknown tiers get the free plan
func LimitsFor(tier payments.Tier) Limits {
	if limits, ok := planLimits[tier]; ok {
		return limits
	}
	return planLimits[payments.TierFree]
}

func within(used, limit int) bool {
	return limit == Unlimited || used < limit
}

// Status is a user's plan and current usage
type Status struct {
	Tier    payments.Tier `json:"tier"`
	Usage   int           `json:"usage"`
	ResetAt time.Time     `json:"resetAt"`
	Limits  Limits        `json:"limits"`
}

// Service enforces plan limits and keeps the stored subscription in step with payment webhooks
type Service struct {
	profiles repositories.ProfileRepository
	txm      repositories.TransactionManager
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the usage service
func NewService(profiles repositories.ProfileRepository, txm repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		profiles: profiles,
		txm:      txm,
		logger:   logger,
		now:      time.Now,
	}
}

// GetStatus returns the user's tier, usage and limits. Usage from a closed
// window reads as zero even before the reset job has run.
func (s *Service) GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier := payments.Tier(profile.SubscriptionTier)
	used := profile.AIUsageCount
	if profile.UsageExpired(s.now()) {
		used = 0
	}

	return &Status{
		Tier:    tier,
		Usage:   used,
		ResetAt: profile.AIUsageResetAt,
		Limits:  LimitsFor(tier),
	}, nil
}

// CanSummarize reports whether the user has AI summaries left this window
func (s *Service) CanSummarize(ctx context.Context, userID uuid.UUID) (bool, error) {
	status, err := s.GetStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	return within(status.Usage, status.Limits.MaxAISummaries), nil
}

// CanTranscribe reports whether the user's plan includes transcription
func (s *Service) CanTranscribe(ctx context.Context, userID uuid.UUID) (bool, error) {
	status, err := s.GetStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	return status.Limits.CanTranscribe, nil
}

// RecordAIUsage counts one AI call against the user's window
func (s *Service) RecordAIUsage(ctx context.Context, userID uuid.UUID) error {
	if err := s.profiles.IncrementAIUsage(ctx, userID); err != nil {
		return s.mapRepoError(err)
	}
	return nil
}

// OwnsSubscription reports whether subscriptionID is the one stored on the user's profile
func (s *Service) OwnsSubscription(ctx context.Context, userID uuid.UUID, subscriptionID string) (bool, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return false, err
	}
	return subscriptionID != "" && profile.SubscriptionID != nil && *profile.SubscriptionID == subscriptionID, nil
}

// ApplyWebhook updates the stored subscription from a verified payment event.
// Unsuccessful results and events that carry nothing to store are ignored.
func (s *Service) ApplyWebhook(ctx context.Context, provider payments.ProviderName, result *payments.WebhookResult) error {
	if result == nil || !result.Success {
		return nil
	}

	switch result.Event {
	case payments.EventCheckoutCompleted:
		return s.applyCheckout(ctx, provider, result)

	case payments.EventSubscriptionUpdated:
		if result.SubscriptionID == "" || result.Tier == "" {
			return nil
		}
		return s.updateBySubscription(ctx, result.SubscriptionID, result.Tier, payments.StatusActive)

	case payments.EventSubscriptionCanceled:
		if result.SubscriptionID == "" {
			return nil
		}
		return s.updateBySubscription(ctx, result.SubscriptionID, payments.TierFree, payments.StatusCanceled)

	default:
		return nil
	}
}

// applyCheckout stores the new tier. Usage restarts only for a subscription
// the profile did not already have, so redelivered webhooks are harmless.
func (s *Service) applyCheckout(ctx context.Context, provider payments.ProviderName, result *payments.WebhookResult) error {
	userID, err := uuid.Parse(result.UserID)
	if err != nil {
		s.logger.Warn("checkout webhook without a valid user id",
			zap.String("provider", string(provider)),
			zap.String("user_id", result.UserID),
		)
		return services.ErrInvalidInput.WithDetail("userId", result.UserID)
	}
	if !result.Tier.Valid() || result.Tier == payments.TierFree {
		s.logger.Warn("checkout webhook without a paid tier",
			zap.String("provider", string(provider)),
			zap.String("tier", string(result.Tier)),
		)
		return services.ErrInvalidPlan
	}

	return s.txm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		profile, err := s.profiles.GetByID(ctx, userID)
		if err != nil {
			return s.mapRepoError(err)
		}

		isNew := startsNewPeriod(profile, result)
		update := models.SubscriptionUpdate{
			Tier:           string(result.Tier),
			Status:         string(payments.StatusActive),
			SubscriptionID: result.SubscriptionID,
			CustomerID:     result.CustomerID,
			Provider:       string(provider),
			ResetUsage:     isNew,
		}
		if err := s.profiles.UpdateSubscription(ctx, userID, update); err != nil {
			return s.mapRepoError(err)
		}

		s.logger.Info("subscription activated",
			zap.String("user_id", userID.String()),
			zap.String("tier", string(result.Tier)),
			zap.String("provider", string(provider)),
			zap.Bool("usage_reset", isNew),
		)
		return nil
	})
}

// startsNewPeriod reports whether a checkout result opens a fresh usage window.
// Paystack sends charge.success without a subscription code and may send it
// before or after subscription.create, so until a profile has a stored
// subscription only a tier change counts.
func startsNewPeriod(profile *models.Profile, result *payments.WebhookResult) bool {
	tierChanged := profile.SubscriptionTier != string(result.Tier)
	switch {
	case result.SubscriptionID == "":
		return tierChanged
	case profile.SubscriptionID == nil || *profile.SubscriptionID == "":
		return tierChanged
	default:
		return *profile.SubscriptionID != result.SubscriptionID
	}
}

// BillingAccount returns the vendor customer recorded at checkout and the vendor it belongs to
func (s *Service) BillingAccount(ctx context.Context, userID uuid.UUID) (string, payments.ProviderName, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if profile.CustomerID == nil || *profile.CustomerID == "" {
		return "", "", services.ErrBillingAccountNotFound
	}

	var provider payments.ProviderName
	if profile.PaymentProvider != nil {
		provider = payments.ProviderName(*profile.PaymentProvider)
	}
	return *profile.CustomerID, provider, nil
}

func (s *Service) updateBySubscription(ctx context.Context, subscriptionID string, tier payments.Tier, status payments.Status) error {
	rows, err := s.profiles.UpdateTierBySubscription(ctx, subscriptionID, string(tier), string(status))
	if err != nil {
		return s.mapRepoError(err)
	}
	if rows == 0 {
		s.logger.Warn("webhook for unknown subscription", zap.String("subscription_id", subscriptionID))
		return nil
	}

	s.logger.Info("subscription changed",
		zap.String("subscription_id", subscriptionID),
		zap.String("tier", string(tier)),
		zap.String("status", string(status)),
	)
	return nil
}

func (s *Service) profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	return profile, nil
}

func (s *Service) mapRepoError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrProfileNotFound
	}
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return services.WrapInternal("profile store", fmt.Errorf("usage: %w", err))
}
