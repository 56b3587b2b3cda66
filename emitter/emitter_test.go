package emitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihqiang/dbxnotify/output"
	"github.com/chihqiang/dbxnotify/pkg/redisx"
	"github.com/chihqiang/dbxnotify/store"
	"github.com/chihqiang/dbxnotify/types"
)

type countingOutput struct {
	mu   sync.Mutex
	sent []types.Message
	err  error
}

func (c *countingOutput) Send(_ context.Context, msg types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *countingOutput) Close() error { return nil }

func (c *countingOutput) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newLedger(t *testing.T) store.IStore {
	t.Helper()
	s, err := store.NewFileStore(store.FileConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	return s
}

var testConfig = Config{TTL: time.Hour, Lease: time.Minute, Retries: 0, BreakerFailures: 3, BreakerTimeout: time.Minute}

func mention(id string) types.Intent {
	return types.NewIntent(types.EventCommentMention, types.MentionContext{CommentID: id, CommentByUserID: "u1", MentionedUserID: "u2"})
}

func TestIdempotent_EmitTwiceSendsOnce(t *testing.T) {
	out := &countingOutput{}
	e := New(newLedger(t), out, WithConfig(testConfig))
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, mention("c1")))
	require.NoError(t, e.Emit(ctx, mention("c1")))
	require.NoError(t, e.Emit(ctx, mention("c1"), mention("c2")))

	assert.Equal(t, 2, out.count())
	key, err := mention("c1").Key()
	require.NoError(t, err)
	assert.Equal(t, key, out.sent[0].Key)
}

func TestIdempotent_ConcurrentDuplicatesSendOnce(t *testing.T) {
	out := &countingOutput{}
	e := New(newLedger(t), out, WithConfig(testConfig))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Emit(context.Background(), mention("c1")); err != nil {
				assert.ErrorIs(t, err, ErrInFlight)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, out.count())

	// once settled every redelivery is a no-op
	require.NoError(t, e.Emit(context.Background(), mention("c1")))
	assert.Equal(t, 1, out.count())
}

// gatedOutput blocks each send until the test releases it with a result.
type gatedOutput struct {
	countingOutput
	started chan struct{}
	release chan error
}

func (g *gatedOutput) Send(ctx context.Context, msg types.Message) error {
	g.started <- struct{}{}
	if err := <-g.release; err != nil {
		return err
	}
	return g.countingOutput.Send(ctx, msg)
}

func TestIdempotent_DuplicateDuringSendIsNotAcked(t *testing.T) {
	out := &gatedOutput{started: make(chan struct{}), release: make(chan error)}
	e := New(newLedger(t), out, WithConfig(testConfig))
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- e.Emit(ctx, mention("c1")) }()
	<-out.started

	assert.ErrorIs(t, e.Emit(ctx, mention("c1")), ErrInFlight)

	out.release <- errors.New("sink unavailable")
	require.Error(t, <-first)

	// the redelivery of either message now sends
	go func() { first <- e.Emit(ctx, mention("c1")) }()
	<-out.started
	out.release <- nil
	require.NoError(t, <-first)
	assert.Equal(t, 1, out.count())
}

func TestIdempotent_StaleLeaseIsRetried(t *testing.T) {
	mr := miniredis.RunT(t)
	ledger, err := store.NewRedisStore(store.RedisConfig{Config: redisx.Config{Addr: mr.Addr()}})
	require.NoError(t, err)
	defer ledger.Close()

	key, err := mention("c1").Key()
	require.NoError(t, err)
	// a handler that died after claiming
	ok, err := ledger.SetNX(ledgerPrefix+key, []byte(claimPending), testConfig.Lease)
	require.NoError(t, err)
	require.True(t, ok)

	out := &countingOutput{}
	e := New(ledger, out, WithConfig(testConfig))
	ctx := context.Background()
	assert.ErrorIs(t, e.Emit(ctx, mention("c1")), ErrInFlight)
	assert.Equal(t, 0, out.count())

	mr.FastForward(testConfig.Lease)
	require.NoError(t, e.Emit(ctx, mention("c1")))
	assert.Equal(t, 1, out.count())

	state, err := ledger.Get(ledgerPrefix + key)
	require.NoError(t, err)
	assert.Equal(t, claimDone, string(state))
	assert.Equal(t, testConfig.TTL, mr.TTL("dbxnotify:"+ledgerPrefix+key))
}

func TestIdempotent_FailureReleasesClaim(t *testing.T) {
	out := &countingOutput{err: errors.New("broker down")}
	ledger := newLedger(t)
	e := New(ledger, out, WithConfig(testConfig))
	ctx := context.Background()

	err := e.Emit(ctx, mention("c1"))
	require.Error(t, err)

	key, kerr := mention("c1").Key()
	require.NoError(t, kerr)
	assert.False(t, ledger.Has(ledgerPrefix+key))

	out.err = nil
	require.NoError(t, e.Emit(ctx, mention("c1")))
	assert.Equal(t, 1, out.count())
}

func TestIdempotent_PartialFailureResendsOnlyTheRest(t *testing.T) {
	out := &countingOutput{}
	e := New(newLedger(t), out, WithConfig(testConfig))
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, mention("c1")))
	out.err = errors.New("broker down")
	require.Error(t, e.Emit(ctx, mention("c1"), mention("c2")))

	out.err = nil
	require.NoError(t, e.Emit(ctx, mention("c1"), mention("c2")))
	assert.Equal(t, 2, out.count())
}

func TestIdempotent_SinkDuplicateIsApplied(t *testing.T) {
	out := &countingOutput{err: output.ErrDuplicate}
	ledger := newLedger(t)
	e := New(ledger, out, WithConfig(testConfig))

	require.NoError(t, e.Emit(context.Background(), mention("c1")))
	key, err := mention("c1").Key()
	require.NoError(t, err)
	state, err := ledger.Get(ledgerPrefix + key)
	require.NoError(t, err)
	assert.Equal(t, claimDone, string(state))
}

func TestIdempotent_BreakerOpens(t *testing.T) {
	out := &countingOutput{err: errors.New("broker down")}
	e := New(newLedger(t), out, WithConfig(testConfig))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, e.Emit(ctx, mention("c1")))
	}
	err := e.Emit(ctx, mention("c1"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	require.NoError(t, r.Emit(ctx, mention("c1"), mention("c1"), mention("c2")))
	assert.Len(t, r.Intents(), 2)

	r.Err = errors.New("x")
	assert.Error(t, r.Emit(ctx, mention("c3")))
	r.Err = nil

	r.Reset()
	assert.Empty(t, r.Intents())
}
