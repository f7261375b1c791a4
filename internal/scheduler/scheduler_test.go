package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-parcel/internal/logger"
	"ms-parcel/internal/scheduler"
)

type countingBookingSweeper struct {
	calls int32
}

func (s *countingBookingSweeper) AutoCancelUnpaid(ctx context.Context) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return 0, nil
}

type countingPayoutSweeper struct {
	calls int32
}

func (s *countingPayoutSweeper) ProcessAutomaticPayouts(ctx context.Context) (int, error) {
	atomic.AddInt32(&s.calls, 1)
	return 0, nil
}

type panickingSweeper struct{}

func (s *panickingSweeper) AutoCancelUnpaid(ctx context.Context) (int, error) {
	panic("boom")
}

func TestSchedulerRunsBothSweeps(t *testing.T) {
	bookings := &countingBookingSweeper{}
	payouts := &countingPayoutSweeper{}
	s := scheduler.New(bookings, payouts, 10*time.Millisecond, logger.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, atomic.LoadInt32(&bookings.calls), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&payouts.calls), int32(2))
}

func TestSchedulerSurvivesPanickingSweep(t *testing.T) {
	payouts := &countingPayoutSweeper{}
	s := scheduler.New(&panickingSweeper{}, payouts, 10*time.Millisecond, logger.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	// The booking sweep panicked every tick; the payout sweep kept running.
	assert.GreaterOrEqual(t, atomic.LoadInt32(&payouts.calls), int32(2))
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	s := scheduler.New(&countingBookingSweeper{}, &countingPayoutSweeper{}, 0, logger.NewLogger())
	assert.Equal(t, time.Minute, s.Interval)
}
