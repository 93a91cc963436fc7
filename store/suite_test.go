package store

import (
	"bytes"
	"fmt"
	"sort"
	"testing"

	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/quorumtest/assert"
)

// newStoreFn returns a fresh, empty store together with its cleanup.
type newStoreFn func() (CacheableKVStore, func())

// testCacheableStore runs the checks every CacheableKVStore implementation
// must pass.
func testCacheableStore(t *testing.T, newStore newStoreFn) {
	t.Run("cache wrap write and discard", func(t *testing.T) { checkCacheWrap(t, newStore) })
	t.Run("child shadows parent", func(t *testing.T) { checkShadowing(t, newStore) })
	t.Run("iterate", func(t *testing.T) { checkIterate(t, newStore) })
}

func checkCacheWrap(t *testing.T, newStore newStoreFn) {
	db, cleanup := newStore()
	defer cleanup()

	owner, policy := []byte("owner"), []byte("alice")
	assertStored(t, db, owner, nil)
	assert.Nil(t, db.Set(owner, policy))
	assertStored(t, db, owner, policy)

	// Writes to a wrap are not visible below until written.
	cache := db.CacheWrap()
	signer, weight := []byte("signer"), []byte{2}
	assertStored(t, cache, owner, policy)
	assert.Nil(t, cache.Set(signer, weight))
	assertStored(t, cache, signer, weight)
	assertStored(t, db, signer, nil)
	assert.Nil(t, cache.Write())
	assertStored(t, db, signer, weight)

	discarded := db.CacheWrap()
	assert.Nil(t, discarded.Set([]byte("action"), []byte("proposed")))
	assert.Nil(t, discarded.Delete(owner))
	discarded.Discard()
	assertStored(t, db, []byte("action"), nil)
	assertStored(t, db, owner, policy)

	removed := db.CacheWrap()
	assert.Nil(t, removed.Delete(owner))
	assertStored(t, removed, owner, nil)
	assertStored(t, db, owner, policy)
	assert.Nil(t, removed.Write())
	assertStored(t, db, owner, nil)
	assertStored(t, db, signer, weight)
}

func checkShadowing(t *testing.T, newStore newStoreFn) {
	db, cleanup := newStore()
	defer cleanup()

	assert.Nil(t, SetOp([]byte("a"), []byte("parent a")).Apply(db))
	assert.Nil(t, SetOp([]byte("b"), []byte("parent b")).Apply(db))

	child := db.CacheWrap()
	for _, op := range []Op{
		SetOp([]byte("a"), []byte("child a")),
		SetOp([]byte("c"), []byte("child c")),
		DelOp([]byte("b")),
	} {
		assert.Nil(t, op.Apply(child))
	}

	assertStored(t, db, []byte("a"), []byte("parent a"))
	assertStored(t, db, []byte("b"), []byte("parent b"))
	assertStored(t, db, []byte("c"), nil)

	want := []Model{
		Pair([]byte("a"), []byte("child a")),
		Pair([]byte("b"), nil),
		Pair([]byte("c"), []byte("child c")),
	}
	for _, m := range want {
		assertStored(t, child, m.Key, m.Value)
	}
	assert.Nil(t, child.Write())
	for _, m := range want {
		assertStored(t, db, m.Key, m.Value)
	}
}

func checkIterate(t *testing.T, newStore newStoreFn) {
	parent := keyedModels("action", 0, 10)
	overwritten := keyedModels("action", 4, 7)
	for i := range overwritten {
		overwritten[i].Value = []byte("executed")
	}
	added := keyedModels("action", 10, 13)
	deleted := keyedModels("action", 0, 2)
	missing := keyedModels("zzz", 0, 2)

	// Parent entries not deleted or overwritten by the child, plus all
	// child writes.
	all := sortModels(append(append(append([]Model{}, parent[2:4]...), parent[7:]...),
		append(overwritten, added...)...))

	cases := map[string]struct {
		start, end []byte
		reverse    bool
		want       []Model
	}{
		"everything": {
			want: all,
		},
		"everything reversed": {
			reverse: true,
			want:    reverse(all),
		},
		"from start": {
			start: all[3].Key,
			want:  all[3:],
		},
		"until end": {
			end:  all[5].Key,
			want: all[:5],
		},
		"bounded reversed": {
			start:   all[2].Key,
			end:     all[8].Key,
			reverse: true,
			want:    reverse(all[2:8]),
		},
		"range of deleted keys only": {
			start: deleted[0].Key,
			end:   parent[2].Key,
			want:  nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db, cleanup := newStore()
			defer cleanup()

			for _, m := range parent {
				assert.Nil(t, db.Set(m.Key, m.Value))
			}
			child := db.CacheWrap()
			for _, m := range append(overwritten, added...) {
				assert.Nil(t, child.Set(m.Key, m.Value))
			}
			for _, m := range append(deleted, missing...) {
				assert.Nil(t, child.Delete(m.Key))
			}

			var (
				it  Iterator
				err error
			)
			if tc.reverse {
				it, err = child.ReverseIterator(tc.start, tc.end)
			} else {
				it, err = child.Iterator(tc.start, tc.end)
			}
			assert.Nil(t, err)
			defer it.Release()

			for i, want := range tc.want {
				key, value, err := it.Next()
				assert.Nil(t, err)
				if !bytes.Equal(want.Key, key) {
					t.Fatalf("%d: want key %q, got %q", i, want.Key, key)
				}
				assert.Equal(t, want.Value, value)
			}
			if _, _, err := it.Next(); !errors.ErrIteratorDone.Is(err) {
				t.Fatalf("want iterator done, got %+v", err)
			}
		})
	}
}

func assertStored(t testing.TB, kv ReadOnlyKVStore, key, want []byte) {
	t.Helper()
	got, err := kv.Get(key)
	assert.Nil(t, err)
	assert.Equal(t, want, got)
	has, err := kv.Has(key)
	assert.Nil(t, err)
	assert.Equal(t, want != nil, has)
}

// keyedModels returns models with keys <prefix>:<n> for n in [from, to).
func keyedModels(prefix string, from, to int) []Model {
	var res []Model
	for i := from; i < to; i++ {
		res = append(res, Pair(
			[]byte(fmt.Sprintf("%s:%03d", prefix, i)),
			[]byte(fmt.Sprintf("proposed %d", i))))
	}
	return res
}

func reverse(models []Model) []Model {
	res := make([]Model, len(models))
	for i, m := range models {
		res[len(models)-1-i] = m
	}
	return res
}

func sortModels(models []Model) []Model {
	res := append([]Model(nil), models...)
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].Key, res[j].Key) < 0
	})
	return res
}
