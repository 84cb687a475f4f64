package spatial

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fernvale/server/internal/ledger"
	"github.com/fernvale/server/internal/memstore"
	"github.com/fernvale/server/internal/world"
)

func seedGlobalPlayer(t *testing.T, store *memstore.Store, led *ledger.Ledger, id string, pos world.Vec2) {
	t.Helper()
	store.PutProfile(world.PlayerProfile{ID: id, Name: id, Pos: pos})
	_, err := led.SetLocation(context.Background(), ledger.SetParams{
		EntityType: world.EntityPlayer,
		EntityID:   id,
		Dimension:  world.DimensionGlobal,
		WorldKey:   "overworld",
	})
	require.NoError(t, err)
}

func TestReconcileInsertsMissingRows(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndex(t)
	led := ledger.New(store, zap.NewNop())

	seedGlobalPlayer(t, store, led, "p1", world.Vec2{X: 70, Y: 5})
	seedGlobalPlayer(t, store, led, "p2", world.Vec2{X: -30, Y: 200})

	rep, err := ix.Reconcile(ctx, led, store, store)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Inserted: 2}, rep)

	row, err := ix.Get(ctx, world.EntityPlayer, "p1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 1, row.ChunkX)
	assert.Equal(t, 0, row.ChunkY)

	row, err = ix.Get(ctx, world.EntityPlayer, "p2")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, -1, row.ChunkX)
	assert.Equal(t, 3, row.ChunkY)
}

func TestReconcileConvergesToUnchanged(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndex(t)
	led := ledger.New(store, zap.NewNop())
	seedGlobalPlayer(t, store, led, "p1", world.Vec2{X: 70, Y: 5})

	_, err := ix.Reconcile(ctx, led, store, store)
	require.NoError(t, err)

	rep, err := ix.Reconcile(ctx, led, store, store)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Unchanged: 1}, rep, "repeat run writes nothing")
}

func TestReconcilePatchesDriftedRows(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndex(t)
	led := ledger.New(store, zap.NewNop())
	seedGlobalPlayer(t, store, led, "p1", world.Vec2{X: 70, Y: 5})

	// A stale row from an earlier chunk size: wrong bucket, wrong spot.
	require.NoError(t, store.Put(ctx, world.SpatialRow{
		WorldKey:   "overworld",
		EntityType: world.EntityPlayer,
		EntityID:   "p1",
		Pos:        world.Vec2{X: 10, Y: 10},
		ChunkX:     7,
		ChunkY:     7,
		UpdatedAt:  time.Now().Add(-time.Hour),
	}))

	rep, err := ix.Reconcile(ctx, led, store, store)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Patched: 1}, rep)

	row, err := ix.Get(ctx, world.EntityPlayer, "p1")
	require.NoError(t, err)
	assert.Equal(t, world.Vec2{X: 70, Y: 5}, row.Pos)
	assert.Equal(t, 1, row.ChunkX)
	assert.Equal(t, 0, row.ChunkY)
}

func TestReconcileSkipsUnresolvable(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndex(t)
	led := ledger.New(store, zap.NewNop())

	// Ledger row without a backing profile.
	_, err := led.SetLocation(ctx, ledger.SetParams{
		EntityType: world.EntityPlayer,
		EntityID:   "phantom",
		Dimension:  world.DimensionGlobal,
		WorldKey:   "overworld",
	})
	require.NoError(t, err)

	rep, err := ix.Reconcile(ctx, led, store, store)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Skipped: 1}, rep)
}

func TestReconcileIgnoresInstanceRows(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndex(t)
	led := ledger.New(store, zap.NewNop())

	store.PutProfile(world.PlayerProfile{ID: "p1", MapName: "meadow", Pos: world.Vec2{X: 3, Y: 3}})
	_, err := led.SetLocation(ctx, ledger.SetParams{
		EntityType: world.EntityPlayer,
		EntityID:   "p1",
		Dimension:  world.DimensionInstance,
		WorldKey:   "overworld",
		MapName:    "meadow",
	})
	require.NoError(t, err)

	rep, err := ix.Reconcile(ctx, led, store, store)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, rep, "instance entities have no global index row")
}

func TestReconcileRecordsAudit(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndex(t)
	led := ledger.New(store, zap.NewNop())
	seedGlobalPlayer(t, store, led, "p1", world.Vec2{X: 70, Y: 5})

	_, err := ix.Reconcile(ctx, led, store, store)
	require.NoError(t, err)

	audits := store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "spatial_reconcile", audits[0].Pass)
	assert.Equal(t, "overworld", audits[0].WorldKey)
	assert.Equal(t, 1, audits[0].Inserted)
	assert.False(t, audits[0].At.IsZero())
}
