package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/agentgraph/pkg/agentgraph/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) store.Store

type pref struct {
	Theme string `json:"theme"`
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()
	ns := store.UserNamespace("user-1", "memories")

	t.Run(name+"/Put_and_Get", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, ns, "prefs", pref{Theme: "dark"}))

		item, err := s.Get(ctx, ns, "prefs")
		require.NoError(t, err)
		assert.Equal(t, "prefs", item.Key)
		assert.Equal(t, ns, item.Namespace)
		assert.False(t, item.CreatedAt.IsZero())

		var got pref
		require.NoError(t, item.Decode(&got))
		assert.Equal(t, "dark", got.Theme)
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.Get(ctx, ns, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Put_EmptyKey", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		assert.ErrorIs(t, s.Put(ctx, ns, "", 1), store.ErrEmptyKey)
	})

	t.Run(name+"/Put_Overwrite", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, ns, "k", "first"))
		first, err := s.Get(ctx, ns, "k")
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, ns, "k", "second"))
		item, err := s.Get(ctx, ns, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `"second"`, string(item.Value))
		assert.True(t, item.CreatedAt.Equal(first.CreatedAt), "created_at survives overwrite")
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, ns, "k", 1))
		require.NoError(t, s.Delete(ctx, ns, "k"))

		_, err := s.Get(ctx, ns, "k")
		assert.ErrorIs(t, err, store.ErrNotFound)

		// Deleting again is not an error
		assert.NoError(t, s.Delete(ctx, ns, "k"))
	})

	t.Run(name+"/List_Sorted", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for _, k := range []string{"c", "a", "b"} {
			require.NoError(t, s.Put(ctx, ns, k, k))
		}

		keys, err := s.List(ctx, ns)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		keys, err := s.List(ctx, ns)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run(name+"/Namespace_Isolation", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		other := store.UserNamespace("user-2", "memories")
		require.NoError(t, s.Put(ctx, ns, "k", "mine"))
		require.NoError(t, s.Put(ctx, other, "k", "theirs"))

		item, err := s.Get(ctx, other, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `"theirs"`, string(item.Value))

		keys, err := s.List(ctx, store.Namespace{"user-1"})
		require.NoError(t, err)
		assert.Empty(t, keys, "parent namespace does not see child items")
	})

	t.Run(name+"/Search", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, ns, "food", map[string]string{"likes": "pizza"}))
		require.NoError(t, s.Put(ctx, ns, "drink", map[string]string{"likes": "tea"}))
		require.NoError(t, s.Put(ctx, ns, "pizza-place", "Luigi's"))

		hits, err := s.Search(ctx, ns, "pizza", 0)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "food", hits[0].Key)
		assert.Equal(t, "pizza-place", hits[1].Key)

		all, err := s.Search(ctx, ns, "", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.Search(ctx, ns, "PIZZA", 0)
		require.NoError(t, err)
		assert.Empty(t, none, "search is case-sensitive")
	})

	t.Run(name+"/Search_Limit", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for i := 0; i < 15; i++ {
			require.NoError(t, s.Put(ctx, ns, fmt.Sprintf("k%02d", i), i))
		}

		hits, err := s.Search(ctx, ns, "", 0)
		require.NoError(t, err)
		assert.Len(t, hits, store.DefaultSearchLimit)

		hits, err = s.Search(ctx, ns, "", 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "k00", hits[0].Key)
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.Put(ctx, ns, "k", 1), store.ErrStoreClosed)
		_, err := s.Get(ctx, ns, "k")
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		_, err = s.List(ctx, ns)
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		_, err = s.Search(ctx, ns, "", 0)
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		assert.ErrorIs(t, s.Delete(ctx, ns, "k"), store.ErrStoreClosed)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) store.Store {
		s, err := store.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	ns := store.Namespace{"app"}

	s1, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, ns, "k", 42))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	item, err := s2.Get(ctx, ns, "k")
	require.NoError(t, err)
	var n int
	require.NoError(t, item.Decode(&n))
	assert.Equal(t, 42, n)
}

func TestNamespace(t *testing.T) {
	ns := store.UserNamespace("u1", "memories", "facts")
	assert.Equal(t, store.Namespace{"u1", "memories", "facts"}, ns)
	assert.Equal(t, "u1/memories/facts", ns.String())
}

func TestOpen(t *testing.T) {
	mem, err := store.Open(store.Backend{})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, mem)
	require.NoError(t, mem.Close())

	lite, err := store.Open(store.Backend{Kind: store.BackendSQLite})
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, lite)
	require.NoError(t, lite.Close())

	_, err = store.Open(store.Backend{Kind: "lance"})
	assert.Error(t, err)
}
