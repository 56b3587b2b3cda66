package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/emitter"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/types"
)

// ErrBatchAllocation fails a digest run before anything is scanned.
var ErrBatchAllocation = errors.New("digest batch allocation failed")

// DigestScheduler emits digest_generate intents for subscriptions whose
// preferred hour is OffsetHours ahead of the current hour in their timezone.
type DigestScheduler struct {
	Emitter     emitter.Emitter
	Clock       clock.Clock
	Logger      logx.ILogger
	SendType    string
	OffsetHours int
	Concurrency int
}

type DigestStats struct {
	BatchID string
	Scanned int
	Matched int
	Skipped int
	Emitted int
}

// Run scans the subscriptions of SendType once.
func (d *DigestScheduler) Run(ctx context.Context, ds datastore.Store) (DigestStats, error) {
	clk := d.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := d.Logger
	if logger == nil {
		logger = logx.Discard()
	}
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	now := clk.Now().UTC()
	offset := ClampToHours(d.OffsetHours)

	batchID, err := ds.AllocateBatch(ctx, "digest-"+d.SendType)
	if err != nil {
		return DigestStats{}, fmt.Errorf("%w: %v", ErrBatchAllocation, err)
	}
	stats := DigestStats{BatchID: batchID}

	sendAt := now.Add(time.Duration(offset) * time.Hour).Truncate(time.Hour)
	previous := now.AddDate(0, 0, -1)
	if d.SendType == datastore.SendTypeWeekly {
		previous = now.AddDate(0, 0, -7)
	}
	locs := newLocations(logger)
	var emitted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	err = ds.StreamDigestSubscriptions(gctx, d.SendType, func(sub datastore.DigestSubscription) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		loc := locs.get(sub.PreferredTimezone)
		if ClampToHours(sub.PreferredHour-now.In(loc).Hour()) != offset {
			return nil
		}
		stats.Matched++
		localSend := sendAt.In(loc)
		switch d.SendType {
		case datastore.SendTypeWorkdays:
			if isWeekend(localSend.Weekday()) {
				stats.Skipped++
				return nil
			}
		case datastore.SendTypeWeekly:
			if int(localSend.Weekday()) != sub.PreferredDay {
				stats.Skipped++
				return nil
			}
		}
		intent := types.NewIntent(types.EventDigestGenerate, types.DigestContext{
			UserID:         sub.UserID,
			SendType:       sub.SendType,
			PreferredHour:  sub.PreferredHour,
			PreferredDay:   sub.PreferredDay,
			Timezone:       loc.String(),
			SendAt:         sendAt,
			PreviousSendAt: previous,
			BatchID:        batchID,
		})
		g.Go(func() error {
			if err := d.Emitter.Emit(gctx, intent); err != nil {
				return fmt.Errorf("digest for %s: %w", sub.UserID, err)
			}
			emitted.Add(1)
			return nil
		})
		return nil
	})
	werr := g.Wait()
	stats.Emitted = int(emitted.Load())
	// an emit failure cancels gctx; report it rather than the cancellation
	if werr != nil {
		return stats, werr
	}
	if err != nil {
		return stats, fmt.Errorf("scan %s digests: %w", d.SendType, err)
	}
	logger.Info("digest run %s batch=%s: scanned=%d matched=%d skipped=%d emitted=%d",
		d.SendType, batchID, stats.Scanned, stats.Matched, stats.Skipped, stats.Emitted)
	return stats, nil
}
