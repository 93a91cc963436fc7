package sigs

import (
	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/crypto"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
)

// BucketName is where we store the accounts
const BucketName = "sigs"

// UserData keeps the replay protection state of a single public key.
type UserData struct {
	Pubkey   crypto.PublicKey
	Sequence int64
}

var _ orm.Model = (*UserData)(nil)

func (u *UserData) Validate() error {
	if err := u.Pubkey.Validate(); err != nil {
		return errors.Wrap(err, "pubkey")
	}
	if u.Sequence < 0 {
		return errors.Wrap(ErrInvalidSequence, "negative")
	}
	return nil
}

// CheckAndIncrementSequence implements check and increment operation.
// If current sequence value is the same as given expected value then it is
// incremented. Otherwise an error is returned.
func (u *UserData) CheckAndIncrementSequence(expected int64) error {
	if u.Sequence != expected {
		return errors.Wrapf(ErrInvalidSequence, "mismatch expected %d, got %d", u.Sequence, expected)
	}
	next := u.Sequence + 1

	// Greatest integer a JSON client can represent without precision loss.
	const maxSequenceValue = (1 << 53) - 1
	if next <= 0 || next > maxSequenceValue {
		return errors.Wrap(errors.ErrOverflow, "sequence out of range")
	}
	u.Sequence = next
	return nil
}

// Bucket stores UserData indexed by the address of the public key.
type Bucket struct {
	orm.ModelBucket
}

// NewBucket returns a bucket for user sequences.
func NewBucket() Bucket {
	return Bucket{ModelBucket: orm.NewModelBucket(BucketName, &UserData{})}
}

// GetOrCreate loads the user data of given key. A fresh, zero sequence
// instance is returned if the key was never used.
func (b Bucket) GetOrCreate(db quorum.ReadOnlyKVStore, pub crypto.PublicKey) (*UserData, error) {
	var u UserData
	switch err := b.One(db, pub.Address(), &u); {
	case err == nil:
		return &u, nil
	case errors.ErrNotFound.Is(err):
		return &UserData{Pubkey: pub}, nil
	default:
		return nil, err
	}
}

// Save persists the user data.
func (b Bucket) Save(db quorum.KVStore, u *UserData) error {
	return b.Put(db, u.Pubkey.Address(), u)
}

// NextSequence returns the sequence value the next signature of given key
// must use.
func NextSequence(db quorum.ReadOnlyKVStore, pub crypto.PublicKey) (int64, error) {
	u, err := NewBucket().GetOrCreate(db, pub)
	if err != nil {
		return 0, err
	}
	return u.Sequence, nil
}
