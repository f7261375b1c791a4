// Package scheduler runs the periodic sweeps: auto-cancelling unpaid
// bookings past their deadline and settling payouts for completed bookings.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"ms-parcel/internal/logger"
)

type BookingSweeper interface {
	AutoCancelUnpaid(ctx context.Context) (int, error)
}

type PayoutSweeper interface {
	ProcessAutomaticPayouts(ctx context.Context) (int, error)
}

type Scheduler struct {
	Bookings BookingSweeper
	Payouts  PayoutSweeper
	Interval time.Duration
	logger   *logger.Logger
}

func New(bookings BookingSweeper, payouts PayoutSweeper, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		Bookings: bookings,
		Payouts:  payouts,
		Interval: interval,
		logger:   log,
	}
}

// Run ticks until the context is cancelled. Each sweep is recovered
// independently so a panic in one pass never kills the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.LogScheduler("START", fmt.Sprintf("Sweeping every %s", s.Interval))

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// First pass immediately so restarts do not wait a full interval.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.LogScheduler("STOP", "Context cancelled, scheduler shutting down")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	s.run(ctx, "booking-timeout", func(ctx context.Context) error {
		cancelled, err := s.Bookings.AutoCancelUnpaid(ctx)
		if err != nil {
			return err
		}
		if cancelled > 0 {
			s.logger.LogScheduler("TIMEOUT", fmt.Sprintf("Auto-cancelled %d unpaid bookings", cancelled))
		}
		return nil
	})

	s.run(ctx, "payout-settlement", func(ctx context.Context) error {
		settled, err := s.Payouts.ProcessAutomaticPayouts(ctx)
		if err != nil {
			return err
		}
		if settled > 0 {
			s.logger.LogScheduler("PAYOUT", fmt.Sprintf("Settled %d payouts", settled))
		}
		return nil
	})
}

func (s *Scheduler) run(ctx context.Context, name string, pass func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("SCHEDULER", fmt.Sprintf("Panic in %s sweep: %v", name, r))
		}
	}()
	if err := pass(ctx); err != nil {
		s.logger.Error("SCHEDULER", fmt.Sprintf("%s sweep failed: %v", name, err))
	}
}
