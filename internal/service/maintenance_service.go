package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceConfig controls the expiry sweep cadence.
type MaintenanceConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// MaintenanceReport holds the counts of one sweep run.
type MaintenanceReport struct {
	QuotesExpired   int64     `json:"quotes_expired"`
	RequestsExpired int64     `json:"requests_expired"`
	RanAt           time.Time `json:"ran_at"`
}

// MaintenanceService expires stale quotes and requests on a schedule.
type MaintenanceService struct {
	quotes   expirySweeper
	requests expirySweeper
	logger   *zap.Logger
	config   MaintenanceConfig
	now      func() time.Time

	wg sync.WaitGroup
}

// NewMaintenanceService constructs a MaintenanceService.
func NewMaintenanceService(quotes, requests expirySweeper, logger *zap.Logger, cfg MaintenanceConfig) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &MaintenanceService{quotes: quotes, requests: requests, logger: logger, config: cfg, now: time.Now}
}

// RunOnce sweeps quotes then requests. A quote sweep failure does not skip the request sweep.
func (s *MaintenanceService) RunOnce(ctx context.Context) (MaintenanceReport, error) {
	report := MaintenanceReport{RanAt: s.now().UTC()}

	quotes, quoteErr := s.sweep(ctx, "quote", s.quotes, report.RanAt)
	report.QuotesExpired = quotes
	requests, requestErr := s.sweep(ctx, "request", s.requests, report.RanAt)
	report.RequestsExpired = requests

	s.logger.Sugar().Infow("expiry sweep finished",
		"quotes_expired", report.QuotesExpired,
		"requests_expired", report.RequestsExpired,
	)
	return report, errors.Join(quoteErr, requestErr)
}

func (s *MaintenanceService) sweep(ctx context.Context, entity string, sweeper expirySweeper, now time.Time) (int64, error) {
	if sweeper == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	count, err := sweeper.SweepExpired(ctx, now)
	if err != nil {
		s.logger.Sugar().Errorw("expiry sweep failed", "entity", entity, "error", err)
		return 0, err
	}
	return count, nil
}

// Start runs RunOnce immediately and then on every interval until ctx is done.
func (s *MaintenanceService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Sugar().Warnw("scheduled sweep incomplete", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.logger.Sugar().Infow("expiry sweeper started", "interval", s.config.Interval.String())
}

// Wait blocks until the Start loop has exited.
func (s *MaintenanceService) Wait() {
	s.wg.Wait()
}
