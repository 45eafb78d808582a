package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/roommatch/core"
)

type dropNode struct {
	id  int64
	err error
}

func (n *dropNode) Name() string { return "test.drop" }
func (n *dropNode) Kind() Kind   { return KindFilter }

func (n *dropNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if n.err != nil {
		return nil, n.err
	}
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it.ID != n.id {
			out = append(out, it)
		}
	}
	return out, nil
}

func items(ids ...int64) []*core.Item {
	out := make([]*core.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.NewItem(id))
	}
	return out
}

func TestPipelineRun(t *testing.T) {
	p := &Pipeline{Nodes: []Node{&dropNode{id: 2}, &dropNode{id: 4}}}
	got, err := p.Run(context.Background(), &core.RecommendContext{}, items(1, 2, 3, 4))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, core.ItemIDs(got))
}

func TestPipelineStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	p := &Pipeline{Nodes: []Node{&dropNode{err: boom}, &dropNode{id: 1}}}
	got, err := p.Run(context.Background(), &core.RecommendContext{}, items(1, 2))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "filter test.drop")
	assert.Nil(t, got)
}

func TestPipelineCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pipeline{Nodes: []Node{&dropNode{id: 1}}}
	_, err := p.Run(ctx, &core.RecommendContext{}, items(1))
	assert.ErrorIs(t, err, context.Canceled)
}
