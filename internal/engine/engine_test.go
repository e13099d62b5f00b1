package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/observe"
	"github.com/roach88/ddnet/internal/testutil"
)

var (
	ins = testutil.Insert
	del = testutil.Delete
)

func startEngine(t *testing.T, program *Program, replay bool) *Engine {
	t.Helper()
	e, err := Start(program, 2, replay, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func txn(updates ...ir.Update) ir.Txn {
	return ir.Txn{Updates: updates}
}

func TestStart_RejectsNonPositiveWorkers(t *testing.T) {
	_, err := Start(nil, 0, false, nil)
	require.Error(t, err)
	assert.True(t, IsStartError(err))
}

func TestStart_StoreOpenFailure(t *testing.T) {
	_, err := Start(nil, 2, false, nil, WithStorePath(t.TempDir()+"/missing/dir/state.db"))
	require.Error(t, err)
	assert.True(t, IsStartError(err))
}

func TestEngine_AppliesTransactions(t *testing.T) {
	e := startEngine(t, nil, false)
	ctx := context.Background()

	require.NoError(t, e.OnTxn(txn(ins(1, "b"), ins(1, "a"))))
	require.NoError(t, e.OnTxn(txn(del(1, "b"))))

	values, err := e.Contents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{"a"}, values)
}

func TestEngine_RedirectRelabelsIncomingUpdates(t *testing.T) {
	e := startEngine(t, nil, false)
	ctx := context.Background()

	redirects := map[ir.RelID]ir.RelID{0: 10}
	e.Redirect(redirects)
	redirects[0] = 99 // installed map is a copy

	require.NoError(t, e.OnTxn(txn(ins(0, "x"), ins(5, "y"))))

	got, err := e.Contents(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{"x"}, got)

	got, err = e.Contents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got, "redirected source id must not be populated")

	got, err = e.Contents(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{"y"}, got, "ids without redirect are applied as is")
}

func TestEngine_RulesPropagate(t *testing.T) {
	e := startEngine(t, MustProgram(ir.Rule{Head: 2, Body: 1}, ir.Rule{Head: 3, Body: 2}), false)
	rec := testutil.NewRecorder()
	require.NoError(t, e.AddStream(ir.NewRelSet(3)).Subscribe(rec))

	require.NoError(t, e.OnTxn(txn(ins(1, "a"))))
	require.NoError(t, e.OnTxn(txn(del(1, "a"))))

	assert.Equal(t, []ir.Update{ins(3, "a"), del(3, "a")}, rec.Updates())
}

func TestEngine_StreamsAreRestricted(t *testing.T) {
	e := startEngine(t, nil, false)
	left := testutil.NewRecorder()
	right := testutil.NewRecorder()
	require.NoError(t, e.AddStream(ir.NewRelSet(1, 2)).Subscribe(left))
	require.NoError(t, e.AddStream(ir.NewRelSet(3)).Subscribe(right))

	require.NoError(t, e.OnTxn(txn(ins(1, "a"), ins(3, "c"), ins(2, "b"))))

	assert.Equal(t, []ir.Update{ins(1, "a"), ins(2, "b")}, left.Updates())
	assert.Equal(t, []ir.Update{ins(3, "c")}, right.Updates())

	// Both streams see the same commit seq.
	require.Len(t, left.Txns(), 1)
	require.Len(t, right.Txns(), 1)
	assert.Equal(t, left.Txns()[0].Seq, right.Txns()[0].Seq)
}

func TestEngine_NoChangeNoPublish(t *testing.T) {
	e := startEngine(t, nil, false)
	rec := testutil.NewRecorder()
	require.NoError(t, e.AddStream(ir.NewRelSet(1)).Subscribe(rec))

	require.NoError(t, e.OnTxn(txn(ins(1, "a"))))
	require.NoError(t, e.OnTxn(txn(ins(1, "a"))))
	require.NoError(t, e.OnTxn(txn(del(1, "zzz"))))

	assert.Len(t, rec.Txns(), 1)
}

func TestEngine_SeqIsMonotonic(t *testing.T) {
	e := startEngine(t, nil, false)
	rec := testutil.NewRecorder()
	require.NoError(t, e.AddStream(ir.NewRelSet(1)).Subscribe(rec))

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, e.OnTxn(txn(ins(1, v))))
	}

	txns := rec.Txns()
	require.Len(t, txns, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{txns[0].Seq, txns[1].Seq, txns[2].Seq})
}

func TestEngine_WithClockResumesSeq(t *testing.T) {
	e, err := Start(nil, 1, false, nil, WithClock(NewClockAt(100)))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	rec := testutil.NewRecorder()
	require.NoError(t, e.AddStream(ir.NewRelSet(1)).Subscribe(rec))
	require.NoError(t, e.OnTxn(txn(ins(1, "a"))))

	txns := rec.Txns()
	require.Len(t, txns, 1)
	assert.Equal(t, int64(101), txns[0].Seq)
}

func TestEngine_CallbackSeesEveryChange(t *testing.T) {
	type change struct {
		rel    ir.RelID
		value  ir.Value
		weight int
	}
	var (
		mu   sync.Mutex
		seen []change
	)
	cb := func(rel ir.RelID, value ir.Value, weight int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, change{rel, value, weight})
	}

	e, err := Start(MustProgram(ir.Rule{Head: 2, Body: 1}), 1, false, cb)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.OnTxn(txn(ins(1, "a"))))
	require.NoError(t, e.OnTxn(txn(del(1, "a"))))

	assert.Equal(t, []change{
		{1, "a", 1}, {2, "a", 1},
		{1, "a", -1}, {2, "a", -1},
	}, seen)
}

func TestEngine_PublishErrorIsReported(t *testing.T) {
	e := startEngine(t, nil, false)
	rec := testutil.NewRecorder()
	rec.Err = errors.New("peer gone")
	require.NoError(t, e.AddStream(ir.NewRelSet(1)).Subscribe(rec))

	err := e.OnTxn(txn(ins(1, "a")))
	require.Error(t, err)

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodePublish, ee.Code)
	assert.ErrorContains(t, err, "peer gone")

	// The transaction itself was committed.
	values, err := e.Contents(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{"a"}, values)
}

func TestEngine_ApplyErrorLeavesStateUntouched(t *testing.T) {
	e := startEngine(t, nil, false)

	err := e.OnTxn(txn(ins(1, "a"), ir.Update{Rel: 1, Value: "bad"}))
	require.Error(t, err)

	values, err := e.Contents(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestEngine_CanonicalValues(t *testing.T) {
	e := startEngine(t, nil, false)

	require.NoError(t, e.OnTxn(txn(ins(1, "cafe\u0301"), ins(1, "caf\u00e9"))))

	values, err := e.Contents(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{"caf\u00e9"}, values)
}

func TestEngine_CloseClosesSubscribers(t *testing.T) {
	e, err := Start(nil, 2, false, nil)
	require.NoError(t, err)

	a := testutil.NewRecorder()
	b := testutil.NewRecorder()
	require.NoError(t, e.AddStream(ir.NewRelSet(1)).Subscribe(a))
	require.NoError(t, e.AddStream(ir.NewRelSet(2)).Subscribe(b))
	unsubscribed := e.AddStream(ir.NewRelSet(3))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "Close is idempotent")

	for _, rec := range []*testutil.Recorder{a, b} {
		assert.Equal(t, 1, rec.Completed())
		assert.Equal(t, 1, rec.Closed())
	}
	assert.ErrorIs(t, e.OnTxn(txn(ins(1, "a"))), observe.ErrClosed)
	assert.ErrorIs(t, unsubscribed.Subscribe(testutil.NewRecorder()), observe.ErrClosed)
}

func TestEngine_CloseReportsSubscriberErrors(t *testing.T) {
	e, err := Start(nil, 1, false, nil)
	require.NoError(t, err)

	rec := testutil.NewRecorder()
	rec.CloseErr = errors.New("flush failed")
	require.NoError(t, e.AddStream(ir.NewRelSet(1)).Subscribe(rec))

	assert.ErrorContains(t, e.Close(), "flush failed")
}
