package jobs

import (
	"context"
	"strings"
	"testing"

	"github.com/ValerySidorin/sopsync/pkg/objstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoff(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	h := NewHandoff(store)

	p, err := h.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.JobIDs)

	require.NoError(t, h.Append(ctx, Pending{RunID: "SYNC-1-a", Mode: "Incremental", JobIDs: []string{"1", "2"}}))
	require.NoError(t, h.Append(ctx, Pending{RunID: "SYNC-2-b", Mode: "Incremental", JobIDs: []string{"2", "3"}}))

	p, err = h.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SYNC-2-b", p.RunID)
	assert.Equal(t, []string{"1", "2", "3"}, p.JobIDs)

	require.NoError(t, h.Remove(ctx, "1", "3"))
	p, err = h.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, p.JobIDs)

	require.NoError(t, h.Remove(ctx, "2"))
	_, err = store.Get(ctx, Key)
	assert.Error(t, err)
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Put(ctx, Key, strings.NewReader("{"), "application/json"))

	_, err := NewHandoff(store).Load(ctx)
	assert.Error(t, err)
}
