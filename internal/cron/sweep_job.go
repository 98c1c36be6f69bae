package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

const (
	defaultSweepBatch  = 200
	maxRoundsPerSweep  = 10
	escrowReleaseJob   = "escrow-release"
	offerExpiryJob     = "offer-expiry"
	outboxRetentionJob = "outbox-retention"
)

// SweepFunc processes up to limit rows due at now and reports how many
// changed.
type SweepFunc func(ctx context.Context, now time.Time, limit int) (int, error)

type escrowReleaser interface {
	ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error)
}

type offerExpirer interface {
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewEscrowReleaseJob completes delivered orders whose hold window elapsed
// and pays out the seller.
func NewEscrowReleaseJob(orders escrowReleaser, batch int, logg *logger.Logger) (Job, error) {
	if orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	return newSweepJob(escrowReleaseJob, orders.ReleaseDue, batch, logg)
}

// NewOfferExpiryJob flips pending offers past their TTL to
// expired. Reads mask expiry lazily, so this only keeps storage honest.
func NewOfferExpiryJob(offers offerExpirer, batch int, logg *logger.Logger) (Job, error) {
	if offers == nil {
		return nil, fmt.Errorf("offer service required")
	}
	return newSweepJob(offerExpiryJob, offers.ExpireDue, batch, logg)
}

type sweepJob struct {
	name  string
	sweep SweepFunc
	batch int
	logg  *logger.Logger
	now   func() time.Time
}

func newSweepJob(name string, sweep SweepFunc, batch int, logg *logger.Logger) (*sweepJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &sweepJob{
		name:  name,
		sweep: sweep,
		batch: batch,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (j *sweepJob) Name() string { return j.name }

// Run drains due rows in batches. Rows skipped because another request holds
// their lock are retried on the next tick, so a short batch ends the run.
func (j *sweepJob) Run(ctx context.Context) error {
	total := 0
	for round := 0; round < maxRoundsPerSweep; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.sweep(ctx, j.now(), j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("%s: %w", j.name, err)
		}
		if n < j.batch {
			break
		}
	}
	if total > 0 {
		j.logg.Info(j.logg.WithField(ctx, "rows_changed", total), j.name+" sweep complete")
	}
	return nil
}
