package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/leasehold/backend/internal/application/billing"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// MonthlyRunner generates the invoices of one billing month
type MonthlyRunner interface {
	Run(ctx context.Context, periodStart time.Time) (*billing.RunResult, error)
}

// InvoiceScheduler runs the monthly invoice job once a day for the current month.
// Invoices that already exist are skipped by the job, so daily runs pick up
// contracts created after the first run of the month.
type InvoiceScheduler struct {
	job       MonthlyRunner
	logger    *zap.Logger
	config    InvoiceSchedulerConfig
	now       func() time.Time
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// InvoiceSchedulerConfig holds configuration for the invoice scheduler
type InvoiceSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// RunHour is the hour (0-23) when the daily run fires
	RunHour int

	// JobTimeout is the maximum time for one run
	JobTimeout time.Duration
}

// DefaultInvoiceSchedulerConfig returns default configuration
func DefaultInvoiceSchedulerConfig() InvoiceSchedulerConfig {
	return InvoiceSchedulerConfig{
		Enabled:    true,
		RunHour:    2,
		JobTimeout: 30 * time.Minute,
	}
}

// NewInvoiceScheduler creates a new invoice scheduler
func NewInvoiceScheduler(job MonthlyRunner, logger *zap.Logger, config InvoiceSchedulerConfig) *InvoiceScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultInvoiceSchedulerConfig().JobTimeout
	}
	return &InvoiceScheduler{
		job:    job,
		logger: logger.Named("invoice_scheduler"),
		config: config,
		now:    time.Now,
	}
}

// Start starts the daily loop
func (s *InvoiceScheduler) Start(ctx context.Context) error {
	if s.config.RunHour < 0 || s.config.RunHour > 23 {
		return ErrInvalidConfig
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Invoice scheduler is disabled")
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.runCtx = ctx
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runDaily(ctx)

	s.logger.Info("Invoice scheduler started", zap.Int("run_hour", s.config.RunHour))
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (s *InvoiceScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Invoice scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Invoice scheduler stop timed out")
		return ctx.Err()
	}
}

// nextRun returns the next time at RunHour strictly after now
func (s *InvoiceScheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.RunHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *InvoiceScheduler) runDaily(ctx context.Context) {
	defer s.wg.Done()

	for {
		nextRun := s.nextRun(s.now())
		delay := nextRun.Sub(s.now())

		s.logger.Info("Monthly invoice run scheduled",
			zap.Time("next_run", nextRun),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Debug("Invoice loop stopping")
			return
		case <-timer.C:
			s.execute(ctx)
		}
	}
}

// execute bills the month containing the current time
func (s *InvoiceScheduler) execute(ctx context.Context) {
	now := s.now()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	runCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	s.logger.Info("Starting monthly invoice run", zap.Time("period_start", periodStart))

	startTime := time.Now()
	result, err := s.job.Run(runCtx, periodStart)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Monthly invoice run failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Monthly invoice run completed",
		zap.Duration("duration", duration),
		zap.Int("tenants", result.Tenants),
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	for _, runErr := range result.Errors {
		s.logger.Warn("Invoice generation failed", zap.Error(runErr))
	}
}

// TriggerImmediateRun starts a run in the background without waiting for RunHour.
// The run is bound to the scheduler's lifetime, not to ctx, so it survives the
// end of the triggering request and is cancelled by Stop.
func (s *InvoiceScheduler) TriggerImmediateRun(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	runCtx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()

	logger.With(ctx, s.logger).Info("Triggering immediate monthly invoice run")

	go func() {
		defer s.wg.Done()
		s.execute(runCtx)
	}()
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *InvoiceScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
