package checkpoint_test

import (
	"context"
	"testing"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) checkpoint.Store

func newCheckpoint(thread string, step int, state string) *checkpoint.Checkpoint {
	return checkpoint.New(thread, "", step, []byte(state))
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Put_and_Get", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := newCheckpoint("thread-1", 1, `{"key":"value"}`).
			WithNodes("node-a", "node-b").
			WithSource(checkpoint.SourceLoop)
		require.NoError(t, store.Put(ctx, cp))

		loaded, err := store.Get(ctx, "thread-1", "", cp.ID)
		require.NoError(t, err)
		assert.Equal(t, cp.ID, loaded.ID)
		assert.Equal(t, "node-a", loaded.NodeID)
		assert.Equal(t, "node-b", loaded.NextNode)
		assert.Equal(t, checkpoint.SourceLoop, loaded.Source)
		assert.JSONEq(t, `{"key":"value"}`, string(loaded.State))
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Get(ctx, "thread-nonexistent", "", "missing")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Latest_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Latest(ctx, "thread-nonexistent", "")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Latest_ReturnsMostRecent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		first := newCheckpoint("thread-1", 1, `{"n":1}`)
		second := newCheckpoint("thread-1", 2, `{"n":2}`).WithParent(first.ID)
		require.NoError(t, store.Put(ctx, first))
		require.NoError(t, store.Put(ctx, second))

		latest, err := store.Latest(ctx, "thread-1", "")
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
		assert.Equal(t, first.ID, latest.ParentID)
		assert.Equal(t, 2, latest.Step)
	})

	t.Run(name+"/Put_AssignsID", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := &checkpoint.Checkpoint{ThreadID: "thread-1", State: []byte(`{}`)}
		require.NoError(t, store.Put(ctx, cp))
		assert.NotEmpty(t, cp.ID)

		_, err := store.Get(ctx, "thread-1", "", cp.ID)
		assert.NoError(t, err)
	})

	t.Run(name+"/Put_MissingThread", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		err := store.Put(ctx, newCheckpoint("", 1, `{}`))
		assert.ErrorIs(t, err, checkpoint.ErrMissingThread)
	})

	t.Run(name+"/Put_ReplaceKeepsOrder", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		a := newCheckpoint("thread-1", 1, `{"v":"a"}`)
		b := newCheckpoint("thread-1", 2, `{"v":"b"}`)
		require.NoError(t, store.Put(ctx, a))
		require.NoError(t, store.Put(ctx, b))

		a.State = []byte(`{"v":"a2"}`)
		require.NoError(t, store.Put(ctx, a))

		cps, err := store.List(ctx, "thread-1", "")
		require.NoError(t, err)
		require.Len(t, cps, 2)
		assert.Equal(t, a.ID, cps[0].ID)
		assert.JSONEq(t, `{"v":"a2"}`, string(cps[0].State))
		assert.Equal(t, b.ID, cps[1].ID)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cps, err := store.List(ctx, "thread-nonexistent", "")
		require.NoError(t, err)
		assert.Empty(t, cps)
	})

	t.Run(name+"/List_Ordered", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		var ids []string
		for step := 1; step <= 3; step++ {
			cp := newCheckpoint("thread-1", step, `{}`)
			require.NoError(t, store.Put(ctx, cp))
			ids = append(ids, cp.ID)
		}

		cps, err := store.List(ctx, "thread-1", "")
		require.NoError(t, err)
		require.Len(t, cps, 3)
		for i, cp := range cps {
			assert.Equal(t, ids[i], cp.ID)
			assert.Equal(t, i+1, cp.Step)
		}
	})

	t.Run(name+"/Namespaces_Isolated", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		root := checkpoint.New("thread-1", "", 1, []byte(`{"ns":"root"}`))
		child := checkpoint.New("thread-1", "child", 1, []byte(`{"ns":"child"}`))
		require.NoError(t, store.Put(ctx, root))
		require.NoError(t, store.Put(ctx, child))

		latest, err := store.Latest(ctx, "thread-1", "child")
		require.NoError(t, err)
		assert.Equal(t, child.ID, latest.ID)

		_, err = store.Get(ctx, "thread-1", "", child.ID)
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Pending_RoundTrip", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := newCheckpoint("thread-1", 3, `{}`).
			WithSource(checkpoint.SourceInterrupt).
			WithPending("approve", []byte(`{"question":"ok?"}`))
		require.NoError(t, store.Put(ctx, cp))

		loaded, err := store.Latest(ctx, "thread-1", "")
		require.NoError(t, err)
		require.NotNil(t, loaded.Pending)
		assert.Equal(t, "approve", loaded.Pending.NodeID)
		assert.JSONEq(t, `{"question":"ok?"}`, string(loaded.Pending.Payload))
		assert.Equal(t, checkpoint.SourceInterrupt, loaded.Source)
	})

	t.Run(name+"/DeleteThread", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Put(ctx, newCheckpoint("thread-1", 1, `{}`)))
		require.NoError(t, store.Put(ctx, checkpoint.New("thread-1", "child", 1, []byte(`{}`))))
		require.NoError(t, store.Put(ctx, newCheckpoint("thread-2", 1, `{}`)))

		require.NoError(t, store.DeleteThread(ctx, "thread-1"))

		cps, err := store.List(ctx, "thread-1", "")
		require.NoError(t, err)
		assert.Empty(t, cps)

		cps, err = store.List(ctx, "thread-1", "child")
		require.NoError(t, err)
		assert.Empty(t, cps)

		// thread-2 should still exist
		cps, err = store.List(ctx, "thread-2", "")
		require.NoError(t, err)
		assert.Len(t, cps, 1)
	})

	t.Run(name+"/DeleteThread_Nonexistent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.DeleteThread(ctx, "thread-nonexistent"))
	})

	t.Run(name+"/DataCopy", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		state := []byte(`{"v":"original"}`)
		cp := newCheckpoint("thread-1", 1, string(state))
		cp.State = state
		require.NoError(t, store.Put(ctx, cp))

		// Modify caller's slice after put
		state[6] = 'X'

		loaded, err := store.Get(ctx, "thread-1", "", cp.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":"original"}`, string(loaded.State))
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		err := store.Put(ctx, newCheckpoint("thread-1", 1, `{}`))
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.Latest(ctx, "thread-1", "")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.Get(ctx, "thread-1", "", "x")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = store.List(ctx, "thread-1", "")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		assert.ErrorIs(t, store.DeleteThread(ctx, "thread-1"), checkpoint.ErrStoreClosed)
	})
}

// TestMemoryStore runs contract tests against MemoryStore.
func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	}
	storeContractTest(t, "MemoryStore", factory)
}

// TestSQLiteStore runs contract tests against SQLiteStore.
func TestSQLiteStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	}
	storeContractTest(t, "SQLiteStore", factory)
}

// TestRedisStore runs contract tests against RedisStore when a server is reachable.
func TestRedisStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Store {
		return newTestRedisStore(t)
	}
	storeContractTest(t, "RedisStore", factory)
}
