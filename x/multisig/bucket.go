package multisig

import (
	"sort"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/gconf"
	"github.com/iov-one/quorum/orm"
)

const (
	// PackageName is the key of the policy record and of the genesis
	// section.
	PackageName = "multisig"

	// SignerBucketName is where signer weights are stored.
	SignerBucketName = "signer"
	// ActionBucketName is where pending actions are stored.
	ActionBucketName = "action"
	// SequenceName is the creation counter of actions.
	SequenceName = "seq"
)

// SignerRegistry persists the policy header and the weighted signers.
type SignerRegistry struct {
	signers orm.ModelBucket
}

// NewSignerRegistry returns a registry using the default bucket.
func NewSignerRegistry() SignerRegistry {
	return SignerRegistry{
		signers: orm.NewModelBucket(SignerBucketName, &member{}),
	}
}

// Configured returns true once a configuration was stored.
func (r SignerRegistry) Configured(db quorum.ReadOnlyKVStore) (bool, error) {
	return gconf.Exists(db, PackageName)
}

// Policy returns the stored policy header. ErrNotFound is returned if the
// registry was never configured.
func (r SignerRegistry) Policy(db quorum.ReadOnlyKVStore) (*Policy, error) {
	var p Policy
	if err := gconf.Load(db, PackageName, &p); err != nil {
		return nil, errors.Wrap(err, "registry policy")
	}
	return &p, nil
}

// WeightOf returns the weight of given address or 0 if it is not a signer.
func (r SignerRegistry) WeightOf(db quorum.ReadOnlyKVStore, addr quorum.Address) (Weight, error) {
	m, err := r.member(db, addr)
	if err != nil || m == nil {
		return 0, err
	}
	return m.Weight, nil
}

// IsSigner returns true if given address is a member of the registry,
// regardless of its weight.
func (r SignerRegistry) IsSigner(db quorum.ReadOnlyKVStore, addr quorum.Address) (bool, error) {
	m, err := r.member(db, addr)
	return m != nil, err
}

func (r SignerRegistry) member(db quorum.ReadOnlyKVStore, addr quorum.Address) (*member, error) {
	if len(addr) == 0 {
		return nil, nil
	}
	var m member
	switch err := r.signers.One(db, addr, &m); {
	case err == nil:
		return &m, nil
	case errors.ErrNotFound.Is(err):
		return nil, nil
	default:
		return nil, err
	}
}

// Signers returns all members in configured order, owner first.
func (r SignerRegistry) Signers(db quorum.ReadOnlyKVStore) ([]Signer, error) {
	var ms []*member
	err := r.signers.Iterate(db, func(key []byte, m orm.Model) error {
		ms = append(ms, m.(*member))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Position < ms[j].Position })
	res := make([]Signer, len(ms))
	for i, m := range ms {
		res[i] = Signer{Address: m.Address, Weight: m.Weight}
	}
	return res, nil
}

// Save replaces the whole registry content with given configuration,
// stored under given version. Configuration is not validated here.
func (r SignerRegistry) Save(db quorum.KVStore, c Configuration, version int64) error {
	var stale [][]byte
	err := r.signers.Iterate(db, func(key []byte, _ orm.Model) error {
		stale = append(stale, key)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "list signers")
	}
	for _, key := range stale {
		if err := r.signers.Delete(db, key); err != nil {
			return errors.Wrap(err, "delete signer")
		}
	}

	for i, s := range c.Members() {
		m := member{Address: s.Address, Weight: s.Weight, Position: int32(i)}
		if err := r.signers.Put(db, s.Address, &m); err != nil {
			return errors.Wrapf(err, "save signer %s", s.Address)
		}
	}

	p := Policy{
		Owner:        c.Owner,
		MasterWeight: c.MasterWeight,
		Thresholds:   c.Thresholds,
		Version:      version,
	}
	if err := gconf.Save(db, PackageName, &p); err != nil {
		return errors.Wrap(err, "save policy")
	}
	return nil
}

// PendingActionStore is the keyed collection of proposed actions. Every id
// maps to at most one live action.
type PendingActionStore struct {
	actions orm.ModelBucket
	seq     orm.Sequence
}

// NewPendingActionStore returns a store using the default bucket.
func NewPendingActionStore() PendingActionStore {
	b := orm.NewModelBucket(ActionBucketName, &PendingAction{})
	return PendingActionStore{
		actions: b,
		seq:     b.Sequence(SequenceName),
	}
}

// Get returns the action with given id. ErrNotFound is returned if it does
// not exist.
func (s PendingActionStore) Get(db quorum.ReadOnlyKVStore, id []byte) (*PendingAction, error) {
	var a PendingAction
	if err := s.actions.One(db, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// LastSequence returns the creation sequence of the most recent proposal.
func (s PendingActionStore) LastSequence(db quorum.KVStore) (int64, error) {
	return s.seq.Latest(db)
}

// InsertIfAbsent stores given action unless a live action with the same id
// exists, in which case false is returned and nothing is written. Terminal
// actions are replaced. The creation sequence of the action is assigned
// here.
func (s PendingActionStore) InsertIfAbsent(db quorum.KVStore, a *PendingAction) (bool, error) {
	switch prev, err := s.Get(db, a.ID); {
	case errors.ErrNotFound.Is(err):
	case err != nil:
		return false, err
	case !prev.Status.Terminal():
		return false, nil
	}

	seq, err := s.seq.NextInt(db)
	if err != nil {
		return false, errors.Wrap(err, "sequence")
	}
	a.Sequence = seq
	if err := s.actions.Put(db, a.ID, a); err != nil {
		return false, err
	}
	return true, nil
}

// Update loads the action, applies the mutator and stores the result.
// Terminal actions are never modified and ErrAlreadyFinalized is returned
// instead. Nothing is written when the mutator fails.
func (s PendingActionStore) Update(db quorum.KVStore, id []byte, mutate func(*PendingAction) error) (*PendingAction, error) {
	a, err := s.Get(db, id)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, errors.Wrapf(ErrAlreadyFinalized, "action %X is %s", id, a.Status)
	}
	if err := mutate(a); err != nil {
		return nil, err
	}
	if err := s.actions.Put(db, id, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Proposed returns all live actions, ordered by creation.
func (s PendingActionStore) Proposed(db quorum.ReadOnlyKVStore) ([]*PendingAction, error) {
	var res []*PendingAction
	err := s.actions.Iterate(db, func(key []byte, m orm.Model) error {
		if a := m.(*PendingAction); a.Status == StatusProposed {
			res = append(res, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Sequence < res[j].Sequence })
	return res, nil
}
