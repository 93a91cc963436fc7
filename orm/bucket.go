package orm

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

var isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString

// ModelBucket is a prefixed subspace of the DB that holds models of a single
// type.
type ModelBucket struct {
	name   string
	prefix []byte
	model  reflect.Type
}

// NewModelBucket returns a bucket for models of the same type as the
// prototype. Prototype must be a pointer to a struct.
func NewModelBucket(name string, proto Model) ModelBucket {
	if !isBucketName(name) {
		panic(fmt.Sprintf("Illegal bucket: %s", name))
	}
	tp := reflect.TypeOf(proto)
	if tp.Kind() != reflect.Ptr || tp.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("model must be a struct pointer, got %T", proto))
	}
	return ModelBucket{
		name:   name,
		prefix: append([]byte(name), ':'),
		model:  tp,
	}
}

// Name returns the name the bucket was created with.
func (b ModelBucket) Name() string {
	return b.name
}

// DBKey is the full key we store in the db, including prefix.
// We copy into a new array rather than use append, as we don't
// want consecutive calls to overwrite the same byte array.
func (b ModelBucket) DBKey(key []byte) []byte {
	l := len(b.prefix)
	out := make([]byte, l+len(key))
	copy(out, b.prefix)
	copy(out[l:], key)
	return out
}

func (b ModelBucket) checkType(m Model) error {
	if reflect.TypeOf(m) != b.model {
		return errors.Wrapf(errors.ErrInvalidType, "%T cannot be stored in %q bucket of %s", m, b.name, b.model)
	}
	return nil
}

// One query the database for a single model instance. Result is loaded
// into given destination model.
// This method returns ErrNotFound if the entity does not exist in the
// database.
func (b ModelBucket) One(db quorum.ReadOnlyKVStore, key []byte, dest Model) error {
	if err := b.checkType(dest); err != nil {
		return err
	}
	raw, err := db.Get(b.DBKey(key))
	if err != nil {
		return errors.Wrap(err, "get")
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%T %X not in the store", dest, key)
	}
	return Unmarshal(raw, dest)
}

// Has returns true if an entity with given key exists.
func (b ModelBucket) Has(db quorum.ReadOnlyKVStore, key []byte) (bool, error) {
	ok, err := db.Has(b.DBKey(key))
	if err != nil {
		return false, errors.Wrap(err, "has")
	}
	return ok, nil
}

// Put saves given model in the database, overwriting any previous value.
func (b ModelBucket) Put(db quorum.KVStore, key []byte, m Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	if err := b.checkType(m); err != nil {
		return err
	}
	raw, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := db.Set(b.DBKey(key), raw); err != nil {
		return errors.Wrap(err, "cannot store in the database")
	}
	return nil
}

// Delete removes an entity with given primary key from the database.
// It returns ErrNotFound if an entity with given key does not exist.
func (b ModelBucket) Delete(db quorum.KVStore, key []byte) error {
	ok, err := b.Has(db, key)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "%X not in %q bucket", key, b.name)
	}
	return db.Delete(b.DBKey(key))
}

// Iterate calls fn for every model in the bucket, in key order. Every call
// receives a freshly allocated model. Returning an error from fn stops the
// iteration and that error is returned.
func (b ModelBucket) Iterate(db quorum.ReadOnlyKVStore, fn func(key []byte, m Model) error) error {
	it, err := db.Iterator(b.prefix, prefixEnd(b.prefix))
	if err != nil {
		return errors.Wrap(err, "iterator")
	}
	defer it.Release()

	for {
		key, value, err := it.Next()
		switch {
		case errors.ErrIteratorDone.Is(err):
			return nil
		case err != nil:
			return errors.Wrap(err, "next")
		}
		m := reflect.New(b.model.Elem()).Interface().(Model)
		if err := Unmarshal(value, m); err != nil {
			return errors.Wrapf(err, "key %X", key)
		}
		if err := fn(key[len(b.prefix):], m); err != nil {
			return err
		}
	}
}

// Sequence returns a Sequence by name
func (b ModelBucket) Sequence(name string) Sequence {
	return NewSequence(b.name, name)
}

// prefixEnd returns the smallest key that is bigger than all keys starting
// with given prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
