package realize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/schema"
	"github.com/roach88/ddnet/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wideNode exercises every step: two peers, two sink files, two source
// files and one redirect.
func wideNode() (schema.NodeCfg, Outputs) {
	cfg := nodeCfg(map[ir.RelID][]schema.RelCfg{
		0: {schema.Source("in-a.dat"), schema.Sink("out.dump")},
		1: {schema.Input(9)},
		2: {schema.Sink("out.dump")},
		3: {schema.Sink("other.dump"), schema.Source("in-b.dat")},
	})
	outputs := Outputs{addrY: rels(0, 2), addrZ: rels(3)}
	return cfg, outputs
}

func TestRealize_WiresEveryStep(t *testing.T) {
	w := newWorld()
	r := NewRealizer(w.ports(), WithLogger(quietLogger()))
	cfg, outputs := wideNode()

	rz, err := r.Realize(context.Background(), testutil.NodeID(1), addrX, cfg, outputs)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"engine",
		"mux",
		"receiver:" + string(addrX),
		"sender:" + string(addrY),
		"sender:" + string(addrZ),
		"sink:other.dump",
		"sink:out.dump",
		"source:in-a.dat",
		"source:in-b.dat",
	}, w.Open())

	require.Len(t, w.engines, 1)
	eng := w.engines[0]
	assert.Equal(t, DefaultWorkers, eng.workers)
	assert.False(t, eng.replay)
	assert.Equal(t, map[ir.RelID]ir.RelID{9: 1}, eng.redirects)
	assert.Equal(t, map[string][]ir.RelID{
		"sender:" + string(addrY): {0, 2},
		"sender:" + string(addrZ): {3},
		"sink:out.dump":           {0, 2},
		"sink:other.dump":         {3},
	}, eng.Subscriptions())

	assert.Equal(t, DefaultConnectTimeout, w.dials[addrY])

	require.NoError(t, rz.Close())
	require.NoError(t, rz.Close())
	assert.Empty(t, w.Open(), "close releases everything")
}

func TestRealize_ReceiverAcceptsRedirectSources(t *testing.T) {
	w := newWorld()
	var accept ir.RelSet
	ports := w.ports()
	listen := ports.Listen
	ports.Listen = func(addr schema.Addr, rels ir.RelSet) (Source, error) {
		accept = rels
		return listen(addr, rels)
	}

	cfg := nodeCfg(map[ir.RelID][]schema.RelCfg{
		1: {schema.Input(4), schema.Input(6)},
		2: {schema.Input(8)},
	})
	rz, err := NewRealizer(ports, WithLogger(quietLogger())).Realize(context.Background(), testutil.NodeID(1), addrX, cfg, Outputs{})
	require.NoError(t, err)
	defer rz.Close()

	assert.Equal(t, []ir.RelID{4, 6, 8}, accept.Sorted())
}

func TestRealize_FailureReleasesEverything(t *testing.T) {
	tests := []struct {
		name  string
		fail  string
		kind  ErrorKind
		stage Stage
		addr  schema.Addr
		path  string
	}{
		{name: "engine start", fail: "engine", kind: KindEngineStart, stage: StageEngine},
		{name: "first peer", fail: "dial:" + string(addrY), kind: KindConnection, stage: StageConnect, addr: addrY},
		{name: "second peer", fail: "dial:" + string(addrZ), kind: KindConnection, stage: StageConnect, addr: addrZ},
		{name: "sender subscription", fail: "subscribe:sender:" + string(addrZ), kind: KindSubscription, stage: StageConnect, addr: addrZ},
		{name: "sink open", fail: "sink:out.dump", kind: KindIO, stage: StageSink, path: "out.dump"},
		{name: "sink subscription", fail: "subscribe:sink:other.dump", kind: KindSubscription, stage: StageSink, path: "other.dump"},
		{name: "mux subscription", fail: "mux-subscribe", kind: KindSubscription, stage: StageMux},
		{name: "receiver bind", fail: "listen", kind: KindIO, stage: StageReceiver, addr: addrX},
		{name: "receiver registration", fail: "register:receiver:" + string(addrX), kind: KindSubscription, stage: StageReceiver, addr: addrX},
		{name: "first source open", fail: "source:in-a.dat", kind: KindIO, stage: StageSource, path: "in-a.dat"},
		{name: "second source open", fail: "source:in-b.dat", kind: KindIO, stage: StageSource, path: "in-b.dat"},
		{name: "source registration", fail: "register:source:in-b.dat", kind: KindSubscription, stage: StageSource, path: "in-b.dat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			injected := w.failOn(tt.fail)
			r := NewRealizer(w.ports(), WithLogger(quietLogger()))
			cfg, outputs := wideNode()

			rz, err := r.Realize(context.Background(), testutil.NodeID(1), addrX, cfg, outputs)
			require.Error(t, err)
			assert.Nil(t, rz)

			var re *Error
			require.True(t, errors.As(err, &re), "want *Error, got %T", err)
			assert.Equal(t, tt.kind, re.Kind)
			assert.Equal(t, tt.stage, re.Stage)
			assert.Equal(t, testutil.NodeID(1), re.Node)
			assert.Equal(t, tt.addr, re.Addr)
			assert.Equal(t, tt.path, re.Path)
			assert.ErrorIs(t, err, injected)

			assert.Empty(t, w.Open(), "resources left open after %s failure", tt.name)
		})
	}
}

func TestRealize_ConnectionErrorIsRetryable(t *testing.T) {
	w := newWorld()
	w.failOn("dial:" + string(addrY))
	cfg, outputs := wideNode()

	_, err := NewRealizer(w.ports(), WithLogger(quietLogger())).Realize(context.Background(), testutil.NodeID(1), addrX, cfg, outputs)
	assert.True(t, IsConnectionError(err))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsConfigConflict(err))
	assert.Contains(t, err.Error(), string(addrY))
}

func TestRealize_IOErrorIsNotRetryable(t *testing.T) {
	w := newWorld()
	w.failOn("sink:out.dump")
	cfg, outputs := wideNode()

	_, err := NewRealizer(w.ports(), WithLogger(quietLogger())).Realize(context.Background(), testutil.NodeID(1), addrX, cfg, outputs)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "path=out.dump")
}

func TestRealize_ConnectOptions(t *testing.T) {
	w := newWorld()
	r := NewRealizer(w.ports(),
		WithLogger(quietLogger()),
		WithWorkers(4),
		WithConnectTimeout(3*time.Second),
		WithConnectInterval(10*time.Millisecond),
	)

	rz, err := r.Realize(context.Background(), testutil.NodeID(1), addrX, schema.NodeCfg{0: {}}, Outputs{addrY: rels(0)})
	require.NoError(t, err)
	defer rz.Close()

	assert.Equal(t, 4, w.engines[0].workers)
	assert.Equal(t, 3*time.Second, w.dials[addrY])
}

func TestRealize_RedirectConflict(t *testing.T) {
	cfg := nodeCfg(map[ir.RelID][]schema.RelCfg{
		1: {schema.Input(0)},
		2: {schema.Input(0)},
	})

	t.Run("lenient keeps highest relation", func(t *testing.T) {
		w := newWorld()
		rz, err := NewRealizer(w.ports(), WithLogger(quietLogger())).Realize(context.Background(), testutil.NodeID(1), addrX, cfg, Outputs{})
		require.NoError(t, err)
		defer rz.Close()
		assert.Equal(t, map[ir.RelID]ir.RelID{0: 2}, w.engines[0].redirects)
	})

	t.Run("strict rejects before acquiring anything", func(t *testing.T) {
		w := newWorld()
		_, err := NewRealizer(w.ports(), WithLogger(quietLogger()), WithStrictRedirects()).Realize(context.Background(), testutil.NodeID(1), addrX, cfg, Outputs{})
		require.Error(t, err)
		assert.True(t, IsConfigConflict(err))
		assert.Contains(t, err.Error(), "relation 0 is declared as input of relations [1 2]")
		assert.Empty(t, w.Log())
	})
}

func TestRealization_CloseOrder(t *testing.T) {
	w := newWorld()
	cfg, outputs := wideNode()
	rz, err := NewRealizer(w.ports(), WithLogger(quietLogger())).Realize(context.Background(), testutil.NodeID(1), addrX, cfg, outputs)
	require.NoError(t, err)

	opened := len(w.Log())
	require.NoError(t, rz.Close())
	closing := w.Log()[opened:]

	// Sources stop before the engine, and the engine goes before the
	// multiplexer finishes.
	index := func(event string) int {
		for i, e := range closing {
			if e == event {
				return i
			}
		}
		t.Fatalf("missing event %q in %v", event, closing)
		return -1
	}
	assert.Less(t, index("close source:in-b.dat"), index("close engine"))
	assert.Less(t, index("close receiver:"+string(addrX)), index("close engine"))
	assert.Less(t, index("close sink:out.dump"), index("close mux"))
	assert.Less(t, index("close sender:"+string(addrY)), index("close mux"))
}
