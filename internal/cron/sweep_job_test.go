package cron

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type fakeSweeper struct {
	remaining int
	calls     int
	err       error
}

func (f *fakeSweeper) sweep(_ context.Context, _ time.Time, limit int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n := limit
	if f.remaining < n {
		n = f.remaining
	}
	f.remaining -= n
	return n, nil
}

func (f *fakeSweeper) ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error) {
	return f.sweep(ctx, now, limit)
}

func (f *fakeSweeper) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	return f.sweep(ctx, now, limit)
}

func TestSweepJobDrainsInBatches(t *testing.T) {
	sweeper := &fakeSweeper{remaining: 25}
	job, err := NewEscrowReleaseJob(sweeper, 10, logger.Nop())
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if job.Name() != "escrow-release" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.remaining != 0 || sweeper.calls != 3 {
		t.Fatalf("expected 3 calls draining everything, got calls=%d remaining=%d", sweeper.calls, sweeper.remaining)
	}
}

func TestSweepJobStopsAfterMaxRounds(t *testing.T) {
	sweeper := &fakeSweeper{remaining: 1000}
	job, err := NewOfferExpiryJob(sweeper, 5, logger.Nop())
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != maxRoundsPerSweep {
		t.Fatalf("expected %d rounds, got %d", maxRoundsPerSweep, sweeper.calls)
	}
}

func TestSweepJobWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	job, err := NewOfferExpiryJob(&fakeSweeper{err: boom}, 5, logger.Nop())
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	err = job.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if want := fmt.Sprintf("offer-expiry: %v", boom); err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

type fakePruner struct {
	cutoffs []time.Time
	batches []int64
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	if n > int64(limit) {
		n = int64(limit)
	}
	return n, nil
}

func TestOutboxRetentionUsesCutoff(t *testing.T) {
	pruner := &fakePruner{batches: []int64{50, 50, 7}}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: pruner,
		Retention:  48 * time.Hour,
		Batch:      50,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.(*outboxRetention).now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pruner.cutoffs) != 3 {
		t.Fatalf("expected 3 delete rounds, got %d", len(pruner.cutoffs))
	}
	if want := fixed.Add(-48 * time.Hour); !pruner.cutoffs[0].Equal(want) {
		t.Fatalf("cutoff %v, want %v", pruner.cutoffs[0], want)
	}
}
