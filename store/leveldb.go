package store

import (
	"github.com/iov-one/quorum/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a persistent KVStore backed by goleveldb. Writes done through a
// cache wrap are flushed using a single leveldb batch, so a cache wrap write
// is atomic on disk.
type LevelDB struct {
	db *leveldb.DB
}

var _ CacheableKVStore = (*LevelDB)(nil)

// OpenLevelDB opens or creates a database in given directory.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open %q: %s", dir, err)
	}
	return &LevelDB{db: db}, nil
}

// MemLevelDB returns a leveldb instance that keeps all data in memory.
func MemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open memory storage: %s", err)
	}
	return &LevelDB{db: db}, nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	if err := l.db.Close(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Get returns nil if the key does not exist.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	switch {
	case err == leveldb.ErrNotFound:
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return val, nil
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	ok, err := l.db.Has(key, nil)
	if err != nil {
		return false, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return ok, nil
}

func (l *LevelDB) Set(key, value []byte) error {
	if err := l.db.Put(key, value, nil); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (l *LevelDB) Delete(key []byte) error {
	if err := l.db.Delete(key, nil); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Iterator over a domain of keys in ascending order.
func (l *LevelDB) Iterator(start, end []byte) (Iterator, error) {
	it := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return &levelIter{it: it}, nil
}

// ReverseIterator over a domain of keys in descending order.
func (l *LevelDB) ReverseIterator(start, end []byte) (Iterator, error) {
	it := l.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return &levelIter{it: it, reverse: true}, nil
}

// NewBatch returns an atomic leveldb batch.
func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, b: new(leveldb.Batch)}
}

// CacheWrap places a btree cache on top of the database.
func (l *LevelDB) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(l, l.NewBatch(), nil)
}

type levelBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) error {
	b.b.Put(key, value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.b.Delete(key)
	return nil
}

func (b *levelBatch) Write() error {
	if err := b.db.Write(b.b, nil); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	b.b.Reset()
	return nil
}

type levelIter struct {
	it      iterator.Iterator
	reverse bool
	started bool
}

func (i *levelIter) Next() (key, value []byte, err error) {
	var ok bool
	switch {
	case !i.started && i.reverse:
		ok = i.it.Last()
	case i.reverse:
		ok = i.it.Prev()
	default:
		ok = i.it.Next()
	}
	i.started = true
	if !ok {
		if err := i.it.Error(); err != nil {
			return nil, nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		return nil, nil, errors.ErrIteratorDone
	}
	// leveldb reuses the buffers on the next move
	return copyBytes(i.it.Key()), copyBytes(i.it.Value()), nil
}

func (i *levelIter) Release() {
	i.it.Release()
}
