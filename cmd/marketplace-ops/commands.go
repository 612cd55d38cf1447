package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/app"
	"github.com/noah-isme/bonyankop-api/internal/service"
	"github.com/noah-isme/bonyankop-api/pkg/config"
	"github.com/noah-isme/bonyankop-api/pkg/logger"
)

type sweeper interface {
	RunOnce(ctx context.Context) (service.MaintenanceReport, error)
}

type recomputer interface {
	Recompute(ctx context.Context, providerID string) error
}

// withApp loads configuration, wires the application and runs fn against it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Background workers are never started here.
	cfg.Realtime.Enabled = false
	cfg.Certificates.Enabled = false

	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(cfg, logr.Named("ops"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func newSweepCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale quotes and service requests once",
		Example: `  marketplace-ops sweep
  marketplace-ops sweep --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runSweep(ctx, a.Services.Maintenance, cmd.OutOrStdout(), asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runSweep(ctx context.Context, s sweeper, out io.Writer, asJSON bool) error {
	report, err := s.RunOnce(ctx)
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if encErr := encoder.Encode(report); encErr != nil {
			return errors.Join(err, encErr)
		}
	} else {
		fmt.Fprintf(out, "quotes expired:   %d\nrequests expired: %d\n", report.QuotesExpired, report.RequestsExpired)
	}
	return err
}

func newRecomputeCmd() *cobra.Command {
	var providers []string
	cmd := &cobra.Command{
		Use:   "recompute-reputation",
		Short: "Rebuild provider aggregates from ratings and projects",
		Example: `  marketplace-ops recompute-reputation --provider 2f7c...
  marketplace-ops recompute-reputation --provider a,b,c`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids := cleanIDs(providers)
			if len(ids) == 0 {
				return errors.New("at least one --provider is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runRecompute(ctx, a.Services.Reputation, a.Logger, ids, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "provider profile id (repeatable or comma separated)")
	return cmd
}

func runRecompute(ctx context.Context, r recomputer, logr *zap.Logger, ids []string, out io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := r.Recompute(ctx, id); err != nil {
			logr.Warn("recompute failed", zap.String("provider_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("provider %s: %w", id, err))
			continue
		}
		fmt.Fprintf(out, "recomputed %s\n", id)
	}
	return errors.Join(errs...)
}

func cleanIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
