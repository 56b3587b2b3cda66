package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/emitter"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/types"
)

// streakPrefilter is the UTC lower bound for a streak to possibly be a day and
// more behind in any timezone. A DST day is 23h long.
const streakPrefilter = 23 * time.Hour

// StreakEvaluator resets the streaks of users who stopped reading.
type StreakEvaluator struct {
	Emitter   emitter.Emitter
	Clock     clock.Clock
	Logger    logx.ILogger
	BatchSize int
}

type StreakStats struct {
	Scanned    int
	Candidates int
	Recovered  int
	Reset      int
}

type streakCandidate struct {
	row     datastore.StreakRow
	loc     *time.Location
	lastDay time.Time
	expiry  time.Time
}

// Run evaluates every active streak in one transaction. Rows are collected
// first; recovery lookups and updates run after the cursor is closed.
func (s *StreakEvaluator) Run(ctx context.Context, ds datastore.Store) (StreakStats, error) {
	clk := s.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := s.Logger
	if logger == nil {
		logger = logx.Discard()
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = 500
	}
	now := clk.Now()
	locs := newLocations(logger)

	var stats StreakStats
	err := ds.Transaction(ctx, func(tx datastore.Store) error {
		stats = StreakStats{}
		var candidates []streakCandidate
		err := tx.StreamStreaks(ctx, now.Add(-streakPrefilter), func(row datastore.StreakRow) error {
			stats.Scanned++
			loc := locs.get(row.Timezone)
			lastDay := civilDay(row.LastViewAt, loc)
			grace := graceDays(lastDay.Weekday())
			if dayGap(lastDay, civilDay(now, loc)) <= grace {
				return nil
			}
			candidates = append(candidates, streakCandidate{
				row:     row,
				loc:     loc,
				lastDay: lastDay,
				expiry:  lastDay.AddDate(0, 0, grace+1),
			})
			return nil
		})
		if err != nil {
			return err
		}
		stats.Candidates = len(candidates)

		var resets []streakCandidate
		for _, c := range candidates {
			recovered, err := s.recovered(ctx, tx, c, now)
			if err != nil {
				return err
			}
			if recovered {
				stats.Recovered++
				logger.Debug("streak of %s kept by recovery", c.row.UserID)
				continue
			}
			resets = append(resets, c)
		}

		for start := 0; start < len(resets); start += batch {
			end := min(start+batch, len(resets))
			chunk := resets[start:end]
			ids := make([]string, len(chunk))
			intents := make([]types.Intent, len(chunk))
			for i, c := range chunk {
				ids[i] = c.row.UserID
				intents[i] = types.NewIntent(types.EventUserStreakReset, types.StreakResetContext{
					UserID:         c.row.UserID,
					PreviousStreak: c.row.CurrentStreak,
					LastViewAt:     c.row.LastViewAt.UTC(),
					ResetDay:       civilDay(now, c.loc).Format(dayLayout),
				})
			}
			if _, err := tx.ResetStreaks(ctx, ids, now); err != nil {
				return fmt.Errorf("reset streaks: %w", err)
			}
			if err := s.Emitter.Emit(ctx, intents...); err != nil {
				return err
			}
			stats.Reset += len(chunk)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	logger.Info("streak run: scanned=%d candidates=%d recovered=%d reset=%d",
		stats.Scanned, stats.Candidates, stats.Recovered, stats.Reset)
	return stats, nil
}

// recovered reports whether a recovery made on or after the expiry day still
// covers today. A recovery covers its own local day only.
func (s *StreakEvaluator) recovered(ctx context.Context, tx datastore.Store, c streakCandidate, now time.Time) (bool, error) {
	at, err := tx.LatestRecovery(ctx, c.row.UserID)
	if err != nil {
		return false, fmt.Errorf("latest recovery of %s: %w", c.row.UserID, err)
	}
	if at == nil {
		return false, nil
	}
	recoveryDay := civilDay(*at, c.loc)
	today := civilDay(now, c.loc)
	return !recoveryDay.Before(c.expiry) && !today.After(recoveryDay), nil
}
