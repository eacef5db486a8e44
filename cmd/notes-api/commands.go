package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/amebo/notes-backend/app"
	"github.com/amebo/notes-backend/config"
	"github.com/amebo/notes-backend/handlers"
	"github.com/amebo/notes-backend/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func providersCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show the configured AI and payment providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Context())
			if err != nil {
				return err
			}
			return printProviders(cmd.OutOrStdout(), cfg, asJSON)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func printProviders(w io.Writer, cfg *config.Config, asJSON bool) error {
	logger := zap.NewNop()

	aiService, err := app.NewAIService(cfg, logger)
	if err != nil {
		return err
	}
	paymentService, err := app.NewPaymentService(cfg, logger)
	if err != nil {
		return err
	}

	status := handlers.ProvidersResponse{
		AI: aiService.Describe(),
		Payments: handlers.PaymentProvidersStatus{
			Active:    paymentService.GetProvider(),
			Enabled:   paymentService.GetEnabledProviders(),
			Available: paymentService.GetAvailableProviders(),
		},
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AI PROVIDER\tACTIVE\tEMBEDDINGS\tTRANSCRIPTION")
	for _, p := range status.AI {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, yesNo(p.Active), yesNo(p.Embeddings), yesNo(p.Transcription))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PAYMENT PROVIDER\tACTIVE\tENABLED")
	for _, name := range status.Payments.Available {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, yesNo(name == status.Payments.Active), yesNo(paymentService.IsEnabled(name)))
	}
	return tw.Flush()
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Context())
			if err != nil {
				return err
			}

			token, err := issueDevToken(cfg, userID, email, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "dev@localhost", "email claim")
	cmd.Flags().StringVar(&role, "role", middleware.RoleUser, "role claim (user or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func issueDevToken(cfg *config.Config, userID, email, role string, ttl time.Duration) (string, error) {
	if cfg.IsProduction() {
		return "", errors.New("refusing to mint tokens in production")
	}
	if cfg.Session.JWTSecret == "" {
		return "", errors.New("SESSION_JWT_SECRET is not set")
	}

	id := uuid.New()
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			return "", fmt.Errorf("invalid --user: %w", err)
		}
		id = parsed
	}

	return middleware.NewJWTValidator(cfg.Session.JWTSecret, cfg.Session.JWTIssuer).IssueToken(id, email, role, ttl)
}

func resetUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-usage",
		Short: "Reset expired monthly AI usage counters now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.New(ctx)
			if err != nil {
				return err
			}
			logger, err := initLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close(ctx)

			count, err := deps.Scheduler.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d profile(s)\n", count)
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
