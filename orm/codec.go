package orm

import (
	"github.com/iov-one/quorum/errors"
	amino "github.com/tendermint/go-amino"
)

var cdc = amino.NewCodec()

// Model is implemented by any entity that can be stored using ModelBucket.
// Models are plain structs serialized with amino, so they must only contain
// fields amino can represent (no maps, fixed size integers).
type Model interface {
	Validate() error
}

// Marshal serializes given model. Model is validated first.
func Marshal(m Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model")
	}
	raw, err := cdc.MarshalBinaryBare(m)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidType, "marshal %T: %s", m, err)
	}
	return raw, nil
}

// Unmarshal loads serialized model into given destination. Destination must
// be a pointer.
func Unmarshal(raw []byte, dest Model) error {
	if err := cdc.UnmarshalBinaryBare(raw, dest); err != nil {
		return errors.Wrapf(errors.ErrInvalidType, "unmarshal %T: %s", dest, err)
	}
	return nil
}
