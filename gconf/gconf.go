package gconf

import (
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
)

// ReadStore is a subset of quorum.ReadOnlyKVStore.
type ReadStore interface {
	Get([]byte) ([]byte, error)
}

// Store is a subset of quorum.KVStore.
type Store interface {
	ReadStore
	Set([]byte, []byte) error
}

func key(pkg string) []byte {
	return []byte("_c:" + pkg)
}

// Save will Validate the object, before writing it to a special "configuration"
// singleton for that package name.
func Save(db Store, pkg string, src orm.Model) error {
	k := key(pkg)
	raw, err := orm.Marshal(src)
	if err != nil {
		return errors.Wrapf(err, "key %q", k)
	}
	return db.Set(k, raw)
}

// Load reads the configuration of given package. ErrNotFound is returned if
// it was never saved.
func Load(db ReadStore, pkg string, dst orm.Model) error {
	k := key(pkg)
	raw, err := db.Get(k)
	if err != nil {
		return err
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "key %q", k)
	}
	if err := orm.Unmarshal(raw, dst); err != nil {
		return errors.Wrapf(err, "key %q", k)
	}
	return nil
}

// Exists returns true if configuration for given package was saved.
func Exists(db ReadStore, pkg string) (bool, error) {
	raw, err := db.Get(key(pkg))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}
