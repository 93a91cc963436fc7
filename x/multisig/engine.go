package multisig

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
	"github.com/iov-one/quorum/x"
	"github.com/iov-one/quorum/x/notify"
	"github.com/tendermint/tendermint/libs/log"
)

// Engine drives the propose, countersign and execute transitions of
// pending actions. It is safe for concurrent use. Mutations are applied
// one at a time and each of them either commits fully or not at all.
type Engine struct {
	mu       sync.RWMutex
	db       quorum.CacheableKVStore
	auth     x.Authenticator
	notifier quorum.Notifier
	logger   log.Logger
	now      func() time.Time

	registry SignerRegistry
	actions  PendingActionStore
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the sink all notifications are published to.
func WithNotifier(n quorum.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the logger used instead of the one carried by the
// context.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the time source used for creation markers when the
// context carries no block time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine operating on given store. Authenticator is
// the only source of truth about who is calling.
func NewEngine(db quorum.CacheableKVStore, auth x.Authenticator, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		auth:     auth,
		notifier: notify.Nop{},
		now:      time.Now,
		registry: NewSignerRegistry(),
		actions:  NewPendingActionStore(),
	}
	for _, fn := range opts {
		fn(e)
	}
	return e
}

func (e *Engine) log(ctx quorum.Context) log.Logger {
	l := e.logger
	if l == nil {
		l = quorum.GetLogger(ctx)
	}
	return l.With("module", PackageName)
}

// atomic runs fn on a cache wrap of the engine store. The wrap is written
// only if fn succeeds, and only then are the collected events returned.
// Caller must hold the write lock and publish the events with emit after
// releasing it.
func (e *Engine) atomic(ctx quorum.Context, op string, fn func(db quorum.KVStore) ([]quorum.Event, error)) ([]quorum.Event, error) {
	cache := e.db.CacheWrap()
	events, err := apply(cache, fn)
	if err != nil {
		cache.Discard()
		e.log(ctx).Debug("operation rejected", "op", op, "err", err)
		return nil, err
	}
	if err := cache.Write(); err != nil {
		cache.Discard()
		return nil, errors.Wrapf(err, "%s: write", op)
	}
	return events, nil
}

// emit publishes committed events. It must not be called with the lock
// held, so that a sink can query the engine.
func (e *Engine) emit(ctx quorum.Context, events []quorum.Event) {
	for _, ev := range events {
		e.notifier.Emit(ctx, ev.Topic, ev.Key, ev.Value)
	}
}

// apply runs fn, converting a panic into ErrPanic.
func apply(db quorum.KVStore, fn func(db quorum.KVStore) ([]quorum.Event, error)) (events []quorum.Event, err error) {
	defer errors.Recover(&err)
	return fn(db)
}

func (e *Engine) createdAt(ctx quorum.Context) quorum.UnixTime {
	if t, ok := quorum.BlockTime(ctx); ok {
		return quorum.AsUnixTime(t)
	}
	return quorum.AsUnixTime(e.now())
}

// Configure stores the initial registry content. Caller must prove it is
// the configuration owner. A registry can be configured only once, use
// Reconfigure afterwards.
func (e *Engine) Configure(ctx quorum.Context, c Configuration) error {
	if err := x.RequireAddress(ctx, e.auth, c.Owner); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	var events []quorum.Event
	defer func() { e.emit(ctx, events) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	events, err = e.atomic(ctx, "configure", func(db quorum.KVStore) ([]quorum.Event, error) {
		if err := configure(db, e.registry, c); err != nil {
			return nil, err
		}
		e.log(ctx).Info("registry configured", "owner", c.Owner, "signers", len(c.Signers)+1)
		return []quorum.Event{configuredEvent(TopicConfigured, c, 1)}, nil
	})
	return err
}

func configure(db quorum.KVStore, r SignerRegistry, c Configuration) error {
	switch ok, err := r.Configured(db); {
	case err != nil:
		return err
	case ok:
		return errors.Wrap(errors.ErrCannotBeModified, "registry already configured")
	}
	return r.Save(db, c, 1)
}

// Reconfigure atomically replaces the registry content. Both the current
// owner and, if it changes, the new owner must prove their identity. All
// live actions are rejected and their ids are returned.
func (e *Engine) Reconfigure(ctx quorum.Context, c Configuration) ([][]byte, error) {
	var events []quorum.Event
	defer func() { e.emit(ctx, events) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	var rejected [][]byte
	events, err := e.atomic(ctx, "reconfigure", func(db quorum.KVStore) ([]quorum.Event, error) {
		prev, err := e.registry.Policy(db)
		if err != nil {
			return nil, err
		}
		if err := x.RequireAddress(ctx, e.auth, prev.Owner); err != nil {
			return nil, errors.Wrap(err, "current owner")
		}
		if !prev.Owner.Equals(c.Owner) {
			if err := x.RequireAddress(ctx, e.auth, c.Owner); err != nil {
				return nil, errors.Wrap(err, "new owner")
			}
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}

		version := prev.Version + 1
		if err := e.registry.Save(db, c, version); err != nil {
			return nil, err
		}

		live, err := e.actions.Proposed(db)
		if err != nil {
			return nil, errors.Wrap(err, "list proposed")
		}
		events := []quorum.Event{configuredEvent(TopicReconfigured, c, version)}
		for _, a := range live {
			_, err := e.actions.Update(db, a.ID, func(a *PendingAction) error {
				a.Status = StatusRejected
				return nil
			})
			if err != nil {
				return nil, errors.Wrapf(err, "reject %X", a.ID)
			}
			rejected = append(rejected, a.ID)
			events = append(events, quorum.Event{
				Topic: TopicRejected,
				Key:   a.ID,
				Value: RejectedEvent{ActionID: a.ID, Reason: reasonReconfigured},
			})
		}
		e.log(ctx).Info("registry reconfigured", "version", version, "rejected", len(rejected))
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// requireSigner returns the weight of given address. ErrNotASigner is
// returned for addresses that are not members of the registry.
func (e *Engine) requireSigner(db quorum.ReadOnlyKVStore, addr quorum.Address) (Weight, *Policy, error) {
	p, err := e.registry.Policy(db)
	switch {
	case errors.ErrNotFound.Is(err):
		return 0, nil, errors.Wrap(ErrNotASigner, "registry not configured")
	case err != nil:
		return 0, nil, err
	}
	ok, err := e.registry.IsSigner(db, addr)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, errors.Wrapf(ErrNotASigner, "%s", addr)
	}
	w, err := e.registry.WeightOf(db, addr)
	if err != nil {
		return 0, nil, err
	}
	return w, p, nil
}

// Propose creates a new pending action with the proposer weight already
// counted. If that weight alone meets the threshold, the action is
// executed right away. An empty action id is derived from the proposal
// content.
func (e *Engine) Propose(ctx quorum.Context, proposer quorum.Address, actionID []byte, payload Payload) (*Outcome, error) {
	if err := x.RequireAddress(ctx, e.auth, proposer); err != nil {
		return nil, err
	}

	var events []quorum.Event
	defer func() { e.emit(ctx, events) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *Outcome
	events, err := e.atomic(ctx, "propose", func(db quorum.KVStore) ([]quorum.Event, error) {
		weight, policy, err := e.requireSigner(db, proposer)
		if err != nil {
			return nil, err
		}
		if err := payload.Validate(); err != nil {
			return nil, errors.Wrap(err, "payload")
		}
		required, err := policy.Thresholds.RequiredWeight(payload.Class)
		if err != nil {
			return nil, err
		}

		id := actionID
		if len(id) == 0 {
			last, err := e.actions.LastSequence(db)
			if err != nil {
				return nil, err
			}
			id = deriveActionID(proposer, payload, last+1)
		}
		if err := validateActionID(id); err != nil {
			return nil, err
		}

		a := &PendingAction{
			ID:                id,
			Proposer:          proposer,
			Payload:           payload,
			AccumulatedWeight: int64(weight),
			SignedBy:          []quorum.Address{proposer},
			Status:            StatusProposed,
			CreatedAt:         e.createdAt(ctx),
			PolicyVersion:     policy.Version,
		}
		if a.AccumulatedWeight >= int64(required) {
			a.Status = StatusExecuted
		}
		switch ok, err := e.actions.InsertIfAbsent(db, a); {
		case err != nil:
			return nil, err
		case !ok:
			return nil, errors.Wrapf(ErrDuplicateProposal, "action %X", id)
		}

		out = newOutcome(a, required)
		events := []quorum.Event{{
			Topic: TopicProposed,
			Key:   a.ID,
			Value: ProposedEvent{
				ActionID:          a.ID,
				Proposer:          proposer,
				Payload:           payload,
				AccumulatedWeight: a.AccumulatedWeight,
				RequiredWeight:    required,
			},
		}}
		if a.Status == StatusExecuted {
			events = append(events, executedEvent(a))
		}
		e.log(ctx).Info("action proposed", "id", a.ID, "proposer", proposer,
			"weight", a.AccumulatedWeight, "required", required, "status", a.Status)
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func deriveActionID(proposer quorum.Address, p Payload, seq int64) []byte {
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], uint64(seq))
	// Payload is valid at this point so encoding cannot fail.
	raw, _ := orm.Marshal(&p)

	h := sha256.New()
	h.Write(proposer)
	h.Write(raw)
	h.Write(num[:])
	return h.Sum(nil)
}

// Countersign adds the signer weight to a live action. The action is
// executed when its accumulated weight reaches the threshold required by
// its class.
func (e *Engine) Countersign(ctx quorum.Context, signer quorum.Address, actionID []byte) (*Outcome, error) {
	if err := x.RequireAddress(ctx, e.auth, signer); err != nil {
		return nil, err
	}

	var events []quorum.Event
	defer func() { e.emit(ctx, events) }()
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *Outcome
	events, err := e.atomic(ctx, "countersign", func(db quorum.KVStore) ([]quorum.Event, error) {
		weight, policy, err := e.requireSigner(db, signer)
		if err != nil {
			return nil, err
		}

		var required Weight
		a, err := e.actions.Update(db, actionID, func(a *PendingAction) error {
			if a.HasSigned(signer) {
				return errors.Wrapf(ErrDuplicateSignature, "%s already signed %X", signer, a.ID)
			}
			r, err := policy.Thresholds.RequiredWeight(a.Payload.Class)
			if err != nil {
				return err
			}
			required = r
			a.SignedBy = append(a.SignedBy, signer)
			a.AccumulatedWeight += int64(weight)
			if a.AccumulatedWeight >= int64(required) {
				a.Status = StatusExecuted
			}
			return nil
		})
		switch {
		case errors.ErrNotFound.Is(err):
			return nil, errors.Wrapf(ErrUnknownAction, "action %X", actionID)
		case err != nil:
			return nil, err
		}

		out = newOutcome(a, required)
		events := []quorum.Event{{
			Topic: TopicCountersigned,
			Key:   a.ID,
			Value: CountersignedEvent{
				ActionID:          a.ID,
				Signer:            signer,
				AccumulatedWeight: a.AccumulatedWeight,
				RequiredWeight:    required,
			},
		}}
		if a.Status == StatusExecuted {
			events = append(events, executedEvent(a))
		}
		e.log(ctx).Info("action countersigned", "id", a.ID, "signer", signer,
			"weight", a.AccumulatedWeight, "required", required, "status", a.Status)
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Action returns the action with given id. ErrUnknownAction is returned if
// it does not exist.
func (e *Engine) Action(actionID []byte) (*PendingAction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, err := e.actions.Get(e.db, actionID)
	if errors.ErrNotFound.Is(err) {
		return nil, errors.Wrapf(ErrUnknownAction, "action %X", actionID)
	}
	return a, err
}

// Pending returns all live actions in creation order.
func (e *Engine) Pending() ([]*PendingAction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actions.Proposed(e.db)
}

// WeightOf returns the weight of given address, 0 if it is not a signer.
func (e *Engine) WeightOf(addr quorum.Address) (Weight, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.WeightOf(e.db, addr)
}

// IsSigner returns true if given address is a member of the registry.
func (e *Engine) IsSigner(addr quorum.Address) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.IsSigner(e.db, addr)
}

// Signers returns all members, owner first.
func (e *Engine) Signers() ([]Signer, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Signers(e.db)
}

// Policy returns the current policy header. ErrNotFound is returned if the
// registry was never configured.
func (e *Engine) Policy() (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Policy(e.db)
}

// RequiredWeight returns the weight an action of given class needs under
// the current policy.
func (e *Engine) RequiredWeight(c ActionClass) (Weight, error) {
	p, err := e.Policy()
	if err != nil {
		return 0, err
	}
	return p.Thresholds.RequiredWeight(c)
}
