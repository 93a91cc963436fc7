package multisig

import (
	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

// Initializer fulfils the Initializer interface to load data from the genesis
// file
type Initializer struct{}

var _ quorum.Initializer = (*Initializer)(nil)

// genesis is the "multisig" section of the genesis file. Master weight
// defaults to 1 when omitted.
type genesis struct {
	Owner        quorum.Address `json:"owner"`
	MasterWeight *Weight        `json:"master_weight"`
	Signers      []Signer       `json:"signers"`
	Thresholds   Thresholds     `json:"thresholds"`
}

// FromGenesis will parse the registry configuration from genesis and save it
// in the database. Genesis is trusted, so no authorization is required.
// Missing section is not an error.
func (*Initializer) FromGenesis(opts quorum.Options, kv quorum.KVStore) error {
	var g *genesis
	if err := opts.ReadOptions(PackageName, &g); err != nil {
		return err
	}
	if g == nil {
		return nil
	}

	c := NewConfiguration(g.Owner, g.Thresholds, g.Signers...)
	if g.MasterWeight != nil {
		c.MasterWeight = *g.MasterWeight
	}
	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "genesis")
	}
	return configure(kv, NewSignerRegistry(), c)
}
