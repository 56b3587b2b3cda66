package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihqiang/dbxnotify/datastore"
	"github.com/chihqiang/dbxnotify/emitter"
	"github.com/chihqiang/dbxnotify/pkg/logx"
	"github.com/chihqiang/dbxnotify/types"
)

func openDB(t *testing.T) *datastore.DB {
	t.Helper()
	db, err := datastore.Open(datastore.Config{
		Driver:      datastore.DriverSqlite,
		DSN:         filepath.Join(t.TempDir(), "schedule.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func utc(day string, hour int) time.Time {
	d, err := time.Parse(dayLayout, day)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour) * time.Hour)
}

func TestClampToHours(t *testing.T) {
	assert.Equal(t, 4, ClampToHours(4))
	assert.Equal(t, 20, ClampToHours(-4))
	assert.Equal(t, 0, ClampToHours(24))
	assert.Equal(t, 23, ClampToHours(-25))
}

func TestGraceDays(t *testing.T) {
	assert.Equal(t, 2, graceDays(time.Sunday))
	assert.Equal(t, 3, graceDays(time.Monday))
	for _, d := range []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday} {
		assert.Equal(t, 1, graceDays(d), d.String())
	}
}

func TestDayGapAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 2026-03-08 is the spring-forward day in New York
	before := time.Date(2026, 3, 7, 23, 30, 0, 0, ny)
	after := time.Date(2026, 3, 9, 0, 30, 0, 0, ny)
	assert.Equal(t, 2, dayGap(civilDay(before, ny), civilDay(after, ny)))
}

type streakFixture struct {
	db       *datastore.DB
	recorder *emitter.Recorder
}

func newStreakFixture(t *testing.T) *streakFixture {
	return &streakFixture{db: openDB(t), recorder: emitter.NewRecorder()}
}

func (f *streakFixture) addStreak(t *testing.T, userID, tz string, streak int, lastView time.Time) {
	t.Helper()
	if tz != "" {
		require.NoError(t, f.db.Gorm().Create(&datastore.User{ID: userID, Timezone: ptr(tz)}).Error)
	}
	require.NoError(t, f.db.Gorm().Create(&datastore.UserStreak{UserID: userID, CurrentStreak: streak, LastViewAt: ptr(lastView)}).Error)
}

func (f *streakFixture) run(t *testing.T, now time.Time) StreakStats {
	t.Helper()
	ev := &StreakEvaluator{Emitter: f.recorder, Clock: testclock.NewClock(now), Logger: logx.Discard(), BatchSize: 2}
	stats, err := ev.Run(context.Background(), f.db)
	require.NoError(t, err)
	return stats
}

func (f *streakFixture) current(t *testing.T, userID string) int {
	t.Helper()
	var s datastore.UserStreak
	require.NoError(t, f.db.Gorm().Take(&s, "user_id = ?", userID).Error)
	return s.CurrentStreak
}

func TestStreak_MondayReadSurvivesUntilFriday(t *testing.T) {
	f := newStreakFixture(t)
	f.addStreak(t, "u1", "UTC", 5, utc("2026-03-02", 10))

	f.run(t, utc("2026-03-04", 12)) // Wednesday
	assert.Equal(t, 5, f.current(t, "u1"))
	f.run(t, utc("2026-03-05", 12)) // Thursday
	assert.Equal(t, 5, f.current(t, "u1"))

	stats := f.run(t, utc("2026-03-06", 12)) // Friday
	assert.Equal(t, 1, stats.Reset)
	assert.Equal(t, 0, f.current(t, "u1"))

	intents := f.recorder.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, types.EventUserStreakReset, intents[0].Type)
	ctx := intents[0].Context.(types.StreakResetContext)
	assert.Equal(t, 5, ctx.PreviousStreak)
	assert.Equal(t, "2026-03-06", ctx.ResetDay)
}

func TestStreak_FridayReadResetsOnMonday(t *testing.T) {
	f := newStreakFixture(t)
	f.addStreak(t, "u1", "UTC", 3, utc("2026-03-06", 18))

	stats := f.run(t, utc("2026-03-09", 9))
	assert.Equal(t, 1, stats.Reset)
	assert.Equal(t, 0, f.current(t, "u1"))
}

func TestStreak_SundayReadHasTwoDays(t *testing.T) {
	f := newStreakFixture(t)
	f.addStreak(t, "u1", "", 3, utc("2026-03-01", 18))

	f.run(t, utc("2026-03-03", 9)) // Tuesday, gap 2
	assert.Equal(t, 3, f.current(t, "u1"))
	f.run(t, utc("2026-03-04", 9)) // Wednesday, gap 3
	assert.Equal(t, 0, f.current(t, "u1"))
}

func TestStreak_UsesLocalCalendarDays(t *testing.T) {
	f := newStreakFixture(t)
	// Sunday 20:00 UTC is Monday 05:00 in Tokyo, so the Monday grace applies
	f.addStreak(t, "tokyo", "Asia/Tokyo", 4, utc("2026-03-01", 20))
	f.addStreak(t, "utc", "UTC", 4, utc("2026-03-01", 20))

	// Wednesday 20:00 UTC is Thursday 05:00 in Tokyo: gap 3 there, gap 3 > 2 in UTC
	f.run(t, utc("2026-03-04", 20))
	assert.Equal(t, 4, f.current(t, "tokyo"))
	assert.Equal(t, 0, f.current(t, "utc"))
}

func TestStreak_RecoveryBuysOneDay(t *testing.T) {
	f := newStreakFixture(t)
	// Tuesday read: grace 1, the streak would reset on Thursday
	f.addStreak(t, "u1", "UTC", 7, utc("2026-03-03", 10))
	require.NoError(t, f.db.Gorm().Create(&datastore.UserStreakAction{
		UserID:    "u1",
		Type:      datastore.StreakActionRecover,
		CreatedAt: utc("2026-03-05", 8),
	}).Error)

	stats := f.run(t, utc("2026-03-05", 12))
	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, 7, f.current(t, "u1"))

	stats = f.run(t, utc("2026-03-06", 12))
	assert.Equal(t, 1, stats.Reset)
	assert.Equal(t, 0, f.current(t, "u1"))
}

func TestStreak_StaleRecoveryDoesNotCount(t *testing.T) {
	f := newStreakFixture(t)
	f.addStreak(t, "u1", "UTC", 7, utc("2026-03-03", 10))
	require.NoError(t, f.db.Gorm().Create(&datastore.UserStreakAction{
		UserID:    "u1",
		Type:      datastore.StreakActionRecover,
		CreatedAt: utc("2026-03-02", 8),
	}).Error)

	stats := f.run(t, utc("2026-03-05", 12))
	assert.Equal(t, 0, stats.Recovered)
	assert.Equal(t, 0, f.current(t, "u1"))
}

func TestStreak_BatchesAndReruns(t *testing.T) {
	f := newStreakFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		f.addStreak(t, id, "", 2, utc("2026-03-03", 10))
	}
	stats := f.run(t, utc("2026-03-06", 12))
	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 3, stats.Reset)
	assert.Len(t, f.recorder.Intents(), 3)

	stats = f.run(t, utc("2026-03-06", 13))
	assert.Equal(t, 0, stats.Scanned)
	assert.Len(t, f.recorder.Intents(), 3)
}

func TestStreak_EmitFailureRollsBack(t *testing.T) {
	f := newStreakFixture(t)
	f.addStreak(t, "u1", "", 2, utc("2026-03-03", 10))
	f.recorder.Err = errors.New("broker down")

	ev := &StreakEvaluator{Emitter: f.recorder, Clock: testclock.NewClock(utc("2026-03-06", 12))}
	_, err := ev.Run(context.Background(), f.db)
	require.Error(t, err)
	assert.Equal(t, 2, f.current(t, "u1"))
}

type failingBatch struct {
	datastore.Store
}

func (failingBatch) AllocateBatch(context.Context, string) (string, error) {
	return "", errors.New("sequence exhausted")
}

func newDigest(now time.Time, sendType string, rec *emitter.Recorder) *DigestScheduler {
	return &DigestScheduler{
		Emitter:     rec,
		Clock:       testclock.NewClock(now),
		Logger:      logx.Discard(),
		SendType:    sendType,
		OffsetHours: 4,
		Concurrency: 2,
	}
}

func addSubscriptions(t *testing.T, db *datastore.DB, subs ...datastore.DigestSubscription) {
	t.Helper()
	require.NoError(t, db.Gorm().Create(&subs).Error)
}

func TestDigest_BatchAllocationFailureIsFatal(t *testing.T) {
	db := openDB(t)
	addSubscriptions(t, db, datastore.DigestSubscription{UserID: "u1", PreferredHour: 9, PreferredTimezone: "Etc/GMT-9", SendType: datastore.SendTypeWorkdays})
	rec := emitter.NewRecorder()

	_, err := newDigest(utc("2026-03-04", 20), datastore.SendTypeWorkdays, rec).Run(context.Background(), failingBatch{db})
	assert.ErrorIs(t, err, ErrBatchAllocation)
	assert.Empty(t, rec.Intents())
}

func TestDigest_TimezoneOffsetMatching(t *testing.T) {
	db := openDB(t)
	addSubscriptions(t, db,
		datastore.DigestSubscription{UserID: "east", PreferredHour: 9, PreferredTimezone: "Etc/GMT-9", SendType: datastore.SendTypeWorkdays},
		datastore.DigestSubscription{UserID: "west", PreferredHour: 9, PreferredTimezone: "Etc/GMT+7", SendType: datastore.SendTypeWorkdays},
		datastore.DigestSubscription{UserID: "daily", PreferredHour: 9, PreferredTimezone: "Etc/GMT-9", SendType: datastore.SendTypeDaily},
	)
	rec := emitter.NewRecorder()
	now := utc("2026-03-04", 20) // Wednesday

	stats, err := newDigest(now, datastore.SendTypeWorkdays, rec).Run(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.Emitted)
	assert.NotEmpty(t, stats.BatchID)

	intents := rec.Intents()
	require.Len(t, intents, 1)
	dc := intents[0].Context.(types.DigestContext)
	assert.Equal(t, "east", dc.UserID)
	assert.True(t, utc("2026-03-05", 0).Equal(dc.SendAt))
	assert.True(t, now.AddDate(0, 0, -1).Equal(dc.PreviousSendAt))
	assert.Equal(t, stats.BatchID, dc.BatchID)
}

func TestDigest_WorkdaysSkipWeekend(t *testing.T) {
	db := openDB(t)
	addSubscriptions(t, db, datastore.DigestSubscription{UserID: "east", PreferredHour: 9, PreferredTimezone: "Etc/GMT-9", SendType: datastore.SendTypeWorkdays})
	rec := emitter.NewRecorder()

	// Friday 20:00 UTC is Saturday 05:00 at UTC+9; the send lands on Saturday
	stats, err := newDigest(utc("2026-03-06", 20), datastore.SendTypeWorkdays, rec).Run(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, rec.Intents())
}

func TestDigest_WeeklyMatchesPreferredDay(t *testing.T) {
	db := openDB(t)
	addSubscriptions(t, db,
		datastore.DigestSubscription{UserID: "thu", PreferredHour: 9, PreferredDay: int(time.Thursday), PreferredTimezone: "Etc/GMT-9", SendType: datastore.SendTypeWeekly},
		datastore.DigestSubscription{UserID: "mon", PreferredHour: 9, PreferredDay: int(time.Monday), PreferredTimezone: "Etc/GMT-9", SendType: datastore.SendTypeWeekly},
	)
	rec := emitter.NewRecorder()
	now := utc("2026-03-04", 20)

	stats, err := newDigest(now, datastore.SendTypeWeekly, rec).Run(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Emitted)
	intents := rec.Intents()
	require.Len(t, intents, 1)
	dc := intents[0].Context.(types.DigestContext)
	assert.Equal(t, "thu", dc.UserID)
	assert.True(t, now.AddDate(0, 0, -7).Equal(dc.PreviousSendAt))
}

func TestDigest_EmitFailureFailsRun(t *testing.T) {
	db := openDB(t)
	addSubscriptions(t, db, datastore.DigestSubscription{UserID: "east", PreferredHour: 9, PreferredTimezone: "Etc/GMT-9", SendType: datastore.SendTypeDaily})
	rec := emitter.NewRecorder()
	rec.Err = errors.New("broker down")

	_, err := newDigest(utc("2026-03-04", 20), datastore.SendTypeDaily, rec).Run(context.Background(), db)
	assert.Error(t, err)
}
