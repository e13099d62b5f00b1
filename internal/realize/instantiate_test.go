package realize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnet/internal/ir"
	"github.com/roach88/ddnet/internal/schema"
	"github.com/roach88/ddnet/internal/testutil"
)

func TestInstantiate_SelectsNodesAtAddress(t *testing.T) {
	sys, asg := threeNodeChain()
	// A second node at addrZ, with its own sink.
	extra := testutil.NodeID(7)
	sys[extra] = nodeCfg(map[ir.RelID][]schema.RelCfg{8: {schema.Sink("extra.dump")}})
	asg[extra] = addrZ

	w := newWorld()
	r := NewRealizer(w.ports(), WithLogger(quietLogger()))

	got, err := r.Instantiate(context.Background(), sys, addrZ, asg)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, testutil.NodeID(2), got[0].node)
	assert.Equal(t, extra, got[1].node)
	assert.Len(t, w.engines, 2)

	require.NoError(t, CloseAll(got))
	assert.Empty(t, w.Open())
}

func TestInstantiate_DeducesOutputsAgainstWholeSystem(t *testing.T) {
	sys, asg := threeNodeChain()
	w := newWorld()
	r := NewRealizer(w.ports(), WithLogger(quietLogger()))

	got, err := r.Instantiate(context.Background(), sys, addrX, asg)
	require.NoError(t, err)
	defer CloseAll(got)

	require.Len(t, w.engines, 1)
	assert.Equal(t, map[string][]ir.RelID{"sender:" + string(addrZ): {1}}, w.engines[0].Subscriptions())
}

func TestInstantiate_EmptyAddress(t *testing.T) {
	sys, asg := twoNodeChain()
	w := newWorld()

	got, err := NewRealizer(w.ports(), WithLogger(quietLogger())).Instantiate(context.Background(), sys, "10.9.9.9:1", asg)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, w.Log())
}

func TestInstantiate_SkipsAssignedNodeWithoutConfig(t *testing.T) {
	sys, asg := twoNodeChain()
	asg[testutil.NodeID(5)] = addrY

	w := newWorld()
	got, err := NewRealizer(w.ports(), WithLogger(quietLogger())).Instantiate(context.Background(), sys, addrY, asg)
	require.NoError(t, err)
	defer CloseAll(got)

	require.Len(t, got, 1)
	assert.Equal(t, testutil.NodeID(1), got[0].node)
}

func TestInstantiate_AtomicOnFailure(t *testing.T) {
	// Three nodes at addrX; the last one's sink cannot be created.
	sys := schema.SysCfg{
		testutil.NodeID(1): nodeCfg(map[ir.RelID][]schema.RelCfg{0: {schema.Sink("a.dump")}}),
		testutil.NodeID(2): nodeCfg(map[ir.RelID][]schema.RelCfg{1: {schema.Sink("b.dump")}}),
		testutil.NodeID(3): nodeCfg(map[ir.RelID][]schema.RelCfg{2: {schema.Sink("c.dump")}}),
	}
	asg := schema.Assignment{
		testutil.NodeID(1): addrX,
		testutil.NodeID(2): addrX,
		testutil.NodeID(3): addrX,
	}

	w := newWorld()
	injected := w.failOn("sink:c.dump")

	got, err := NewRealizer(w.ports(), WithLogger(quietLogger())).Instantiate(context.Background(), sys, addrX, asg)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, injected)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, testutil.NodeID(3), re.Node)

	assert.Len(t, w.engines, 3, "the first two nodes were realized")
	assert.Empty(t, w.Open(), "earlier realizations are torn down")
}
