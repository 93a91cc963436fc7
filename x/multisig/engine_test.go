package multisig

import (
	"context"
	"testing"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/quorumtest"
	"github.com/iov-one/quorum/quorumtest/assert"
	"github.com/iov-one/quorum/store"
	"github.com/iov-one/quorum/x/notify"
	"github.com/stretchr/testify/require"
)

// testEnv is an engine with a configured registry. The owner is always a
// signer of the master weight.
type testEnv struct {
	engine   *Engine
	db       quorum.CacheableKVStore
	auth     *quorumtest.CtxAuth
	recorder *notify.Recorder
	owner    quorum.Condition
	signers  []quorum.Condition
}

// newTestEnv configures a registry with one signer per given weight.
func newTestEnv(t testing.TB, th Thresholds, masterWeight Weight, weights ...Weight) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       store.MemStore(),
		auth:     &quorumtest.CtxAuth{Key: "auth"},
		recorder: notify.NewRecorder(),
		owner:    quorumtest.NewCondition(),
	}
	env.engine = NewEngine(env.db, env.auth, WithNotifier(env.recorder))

	conf := Configuration{
		Owner:        env.owner.Address(),
		MasterWeight: masterWeight,
		Thresholds:   th,
	}
	for _, w := range weights {
		c := quorumtest.NewCondition()
		env.signers = append(env.signers, c)
		conf.Signers = append(conf.Signers, Signer{Address: c.Address(), Weight: w})
	}
	if err := env.engine.Configure(env.ctx(env.owner), conf); err != nil {
		t.Fatalf("cannot configure: %+v", err)
	}
	env.recorder.Reset()
	return env
}

// ctx returns a context authenticated by given conditions.
func (env *testEnv) ctx(conds ...quorum.Condition) quorum.Context {
	return env.auth.SetConditions(context.Background(), conds...)
}

func (env *testEnv) addr(i int) quorum.Address {
	return env.signers[i].Address()
}

func (env *testEnv) propose(t testing.TB, signer quorum.Condition, id string) *Outcome {
	t.Helper()
	out, err := env.engine.Propose(env.ctx(signer), signer.Address(), []byte(id), transfer())
	if err != nil {
		t.Fatalf("cannot propose %q: %+v", id, err)
	}
	return out
}

var transferDestination = quorum.NewAddress([]byte("settlement"))

func transfer() Payload {
	return Payload{
		Class:       ClassSensitiveTransfer,
		Amount:      1000,
		Destination: transferDestination,
		Memo:        "invoice 42",
	}
}

var stellarDefaults = Thresholds{Low: 0, Medium: 2, High: 2}

func TestTwoOfThreeTransfer(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 1, 1)
	a, b, c := env.signers[0], env.signers[1], env.signers[2]

	out := env.propose(t, a, "tx-1")
	require.Equal(t, StatusProposed, out.Status)
	require.Equal(t, int64(1), out.AccumulatedWeight)
	require.Equal(t, Weight(2), out.RequiredWeight)

	out, err := env.engine.Countersign(env.ctx(b), b.Address(), []byte("tx-1"))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, out.Status)
	require.True(t, out.Executed())
	require.Equal(t, int64(2), out.AccumulatedWeight)

	_, err = env.engine.Countersign(env.ctx(c), c.Address(), []byte("tx-1"))
	assert.IsErr(t, ErrAlreadyFinalized, err)

	action, err := env.engine.Action([]byte("tx-1"))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, action.Status)
	require.Equal(t, []quorum.Address{a.Address(), b.Address()}, action.SignedBy)

	require.Equal(t, []string{TopicProposed, TopicCountersigned, TopicExecuted}, env.recorder.Topics())
}

func TestProposeErrors(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 1)
	a := env.signers[0]
	stranger := quorumtest.NewCondition()
	env.propose(t, a, "live")

	cases := map[string]struct {
		Ctx      quorum.Context
		Proposer quorum.Address
		ID       string
		Payload  Payload
		WantErr  *errors.Error
	}{
		"no proof of identity": {
			Ctx:      env.ctx(),
			Proposer: a.Address(),
			ID:       "x1",
			Payload:  transfer(),
			WantErr:  errors.ErrUnauthorized,
		},
		"proof of a different identity": {
			Ctx:      env.ctx(env.signers[1]),
			Proposer: a.Address(),
			ID:       "x1",
			Payload:  transfer(),
			WantErr:  errors.ErrUnauthorized,
		},
		"not a signer": {
			Ctx:      env.ctx(stranger),
			Proposer: stranger.Address(),
			ID:       "x1",
			Payload:  transfer(),
			WantErr:  ErrNotASigner,
		},
		"invalid payload": {
			Ctx:      env.ctx(a),
			Proposer: a.Address(),
			ID:       "x1",
			Payload:  Payload{Amount: -5},
			WantErr:  errors.ErrInvalidInput,
		},
		"id too long": {
			Ctx:      env.ctx(a),
			Proposer: a.Address(),
			ID:       string(make([]byte, maxActionIDLength+1)),
			Payload:  transfer(),
			WantErr:  errors.ErrInvalidInput,
		},
		"live id": {
			Ctx:      env.ctx(env.signers[1]),
			Proposer: env.addr(1),
			ID:       "live",
			Payload:  transfer(),
			WantErr:  ErrDuplicateProposal,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			env.recorder.Reset()
			last, err := env.engine.actions.LastSequence(env.db)
			require.NoError(t, err)

			_, err = env.engine.Propose(tc.Ctx, tc.Proposer, []byte(tc.ID), tc.Payload)
			assert.IsErr(t, tc.WantErr, err)

			require.Empty(t, env.recorder.Events())
			now, err := env.engine.actions.LastSequence(env.db)
			require.NoError(t, err)
			require.Equal(t, last, now, "failed call must not modify state")
			if tc.ID != "live" {
				_, err = env.engine.Action([]byte(tc.ID))
				assert.IsErr(t, ErrUnknownAction, err)
			}
		})
	}

	live, err := env.engine.Action([]byte("live"))
	require.NoError(t, err)
	require.True(t, a.Address().Equals(live.Proposer))
}

func TestCountersignErrors(t *testing.T) {
	env := newTestEnv(t, Thresholds{Low: 0, Medium: 3, High: 3}, 1, 1, 1, 1)
	a, b := env.signers[0], env.signers[1]
	stranger := quorumtest.NewCondition()

	env.propose(t, a, "tx")
	_, err := env.engine.Countersign(env.ctx(b), b.Address(), []byte("tx"))
	require.NoError(t, err)

	cases := map[string]struct {
		Ctx     quorum.Context
		Signer  quorum.Address
		ID      string
		WantErr *errors.Error
	}{
		"no proof of identity": {
			Ctx:     env.ctx(stranger),
			Signer:  env.addr(2),
			ID:      "tx",
			WantErr: errors.ErrUnauthorized,
		},
		"not a signer": {
			Ctx:     env.ctx(stranger),
			Signer:  stranger.Address(),
			ID:      "tx",
			WantErr: ErrNotASigner,
		},
		"unknown action": {
			Ctx:     env.ctx(env.signers[2]),
			Signer:  env.addr(2),
			ID:      "nope",
			WantErr: ErrUnknownAction,
		},
		"proposer signs again": {
			Ctx:     env.ctx(a),
			Signer:  a.Address(),
			ID:      "tx",
			WantErr: ErrDuplicateSignature,
		},
		"countersigner signs again": {
			Ctx:     env.ctx(b),
			Signer:  b.Address(),
			ID:      "tx",
			WantErr: ErrDuplicateSignature,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			env.recorder.Reset()
			_, err := env.engine.Countersign(tc.Ctx, tc.Signer, []byte(tc.ID))
			assert.IsErr(t, tc.WantErr, err)
			require.Empty(t, env.recorder.Events())

			action, err := env.engine.Action([]byte("tx"))
			require.NoError(t, err)
			require.Equal(t, int64(2), action.AccumulatedWeight)
			require.Len(t, action.SignedBy, 2)
			require.Equal(t, StatusProposed, action.Status)
		})
	}
}

func TestSingleSignerFastPath(t *testing.T) {
	env := newTestEnv(t, Thresholds{Low: 1, Medium: 3, High: 5}, 1, 3, 1, 1)
	heavy := env.signers[0]

	out := env.propose(t, heavy, "fast")
	require.Equal(t, StatusExecuted, out.Status)
	require.Equal(t, int64(3), out.AccumulatedWeight)
	require.Equal(t, []string{TopicProposed, TopicExecuted}, env.recorder.Topics())

	// Account change requires the high level.
	p := Payload{Class: ClassAccountChange}
	out, err := env.engine.Propose(env.ctx(heavy), heavy.Address(), []byte("slow"), p)
	require.NoError(t, err)
	require.Equal(t, StatusProposed, out.Status)
	require.Equal(t, Weight(5), out.RequiredWeight)
}

func TestZeroWeightSigner(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 0, 1)
	a, zero, c := env.signers[0], env.signers[1], env.signers[2]

	env.propose(t, a, "tx")
	out, err := env.engine.Countersign(env.ctx(zero), zero.Address(), []byte("tx"))
	require.NoError(t, err)
	require.Equal(t, StatusProposed, out.Status)
	require.Equal(t, int64(1), out.AccumulatedWeight)

	out, err = env.engine.Countersign(env.ctx(c), c.Address(), []byte("tx"))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, out.Status)

	// Zero weight proposer executes low level actions at once.
	out, err = env.engine.Propose(env.ctx(zero), zero.Address(), []byte("trust"), Payload{Class: ClassAllowTrust})
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, out.Status)
}

func TestReuseTerminalActionID(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 1)
	a, b := env.signers[0], env.signers[1]

	env.propose(t, a, "reuse")
	_, err := env.engine.Countersign(env.ctx(b), b.Address(), []byte("reuse"))
	require.NoError(t, err)

	out := env.propose(t, b, "reuse")
	require.Equal(t, StatusProposed, out.Status)
	require.Equal(t, int64(1), out.AccumulatedWeight)

	action, err := env.engine.Action([]byte("reuse"))
	require.NoError(t, err)
	require.True(t, b.Address().Equals(action.Proposer))
	require.Equal(t, []quorum.Address{b.Address()}, action.SignedBy)

	_, err = env.engine.Propose(env.ctx(a), a.Address(), []byte("reuse"), transfer())
	assert.IsErr(t, ErrDuplicateProposal, err)
}

func TestDerivedActionID(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 1)
	a := env.signers[0]

	first, err := env.engine.Propose(env.ctx(a), a.Address(), nil, transfer())
	require.NoError(t, err)
	require.Len(t, first.ActionID, 32)

	// Same content proposed again gets a different id.
	second, err := env.engine.Propose(env.ctx(a), a.Address(), nil, transfer())
	require.NoError(t, err)
	require.NotEqual(t, first.ActionID, second.ActionID)

	pending, err := env.engine.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ActionID, pending[0].ID)
	require.Equal(t, second.ActionID, pending[1].ID)
}

func TestCreationMarker(t *testing.T) {
	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	db := store.MemStore()
	auth := &quorumtest.CtxAuth{Key: "auth"}
	owner := quorumtest.NewCondition()
	e := NewEngine(db, auth, WithClock(func() time.Time { return now }))

	ctx := auth.SetConditions(context.Background(), owner)
	require.NoError(t, e.Configure(ctx, Configuration{Owner: owner.Address(), MasterWeight: 1, Thresholds: Thresholds{Medium: 1, High: 1}}))

	out, err := e.Propose(ctx, owner.Address(), []byte("clock"), transfer())
	require.NoError(t, err)
	a, err := e.Action(out.ActionID)
	require.NoError(t, err)
	require.Equal(t, quorum.AsUnixTime(now), a.CreatedAt)
	require.Equal(t, int64(1), a.PolicyVersion)

	// Block time takes precedence over the clock.
	block := now.Add(time.Hour)
	out, err = e.Propose(quorum.WithBlockTime(ctx, block), owner.Address(), []byte("block"), transfer())
	require.NoError(t, err)
	a, err = e.Action(out.ActionID)
	require.NoError(t, err)
	require.Equal(t, quorum.AsUnixTime(block), a.CreatedAt)
	require.Equal(t, int64(2), a.Sequence)
}

func TestConfigure(t *testing.T) {
	owner := quorumtest.NewCondition()
	a := quorumtest.NewCondition()
	auth := &quorumtest.CtxAuth{Key: "auth"}
	ownerCtx := auth.SetConditions(context.Background(), owner)
	valid := NewConfiguration(owner.Address(), stellarDefaults, Signer{a.Address(), 1})

	t.Run("requires owner proof", func(t *testing.T) {
		e := NewEngine(store.MemStore(), auth)
		err := e.Configure(auth.SetConditions(context.Background(), a), valid)
		assert.IsErr(t, errors.ErrUnauthorized, err)
	})

	t.Run("rejects invalid policy", func(t *testing.T) {
		e := NewEngine(store.MemStore(), auth)
		bad := valid
		bad.Thresholds = Thresholds{Low: 0, Medium: 2, High: 1}
		assert.IsErr(t, ErrInvalidPolicy, e.Configure(ownerCtx, bad))
		_, err := e.Policy()
		assert.IsErr(t, errors.ErrNotFound, err)
	})

	t.Run("only once", func(t *testing.T) {
		rec := notify.NewRecorder()
		e := NewEngine(store.MemStore(), auth, WithNotifier(rec))
		require.NoError(t, e.Configure(ownerCtx, valid))
		assert.IsErr(t, errors.ErrCannotBeModified, e.Configure(ownerCtx, valid))
		require.Equal(t, []string{TopicConfigured}, rec.Topics())

		signers, err := e.Signers()
		require.NoError(t, err)
		require.Equal(t, valid.Members(), signers)

		ok, err := e.IsSigner(owner.Address())
		require.NoError(t, err)
		require.True(t, ok)
		w, err := e.WeightOf(owner.Address())
		require.NoError(t, err)
		require.Equal(t, DefaultMasterWeight, w)
		req, err := e.RequiredWeight(ClassSensitiveTransfer)
		require.NoError(t, err)
		require.Equal(t, Weight(2), req)
	})

	t.Run("propose before configuration", func(t *testing.T) {
		e := NewEngine(store.MemStore(), auth)
		_, err := e.Propose(ownerCtx, owner.Address(), []byte("x"), transfer())
		assert.IsErr(t, ErrNotASigner, err)
	})
}

func TestReconfigure(t *testing.T) {
	env := newTestEnv(t, Thresholds{Low: 0, Medium: 3, High: 3}, 1, 1, 1, 1)
	a, b := env.signers[0], env.signers[1]

	env.propose(t, a, "p1")
	env.propose(t, b, "p2")
	_, err := env.engine.Countersign(env.ctx(a), a.Address(), []byte("p2"))
	require.NoError(t, err)
	_, err = env.engine.Countersign(env.ctx(env.signers[2]), env.addr(2), []byte("p2"))
	require.NoError(t, err)
	env.propose(t, b, "p3")

	newOwner := quorumtest.NewCondition()
	conf := NewConfiguration(newOwner.Address(), stellarDefaults, Signer{a.Address(), 2})

	env.recorder.Reset()
	// Old owner alone cannot hand over to a new owner.
	_, err = env.engine.Reconfigure(env.ctx(env.owner), conf)
	assert.IsErr(t, errors.ErrUnauthorized, err)
	// New owner alone cannot take over.
	_, err = env.engine.Reconfigure(env.ctx(newOwner), conf)
	assert.IsErr(t, errors.ErrUnauthorized, err)
	// Invalid policy changes nothing.
	bad := conf
	bad.Thresholds = Thresholds{Low: 3, Medium: 2, High: 2}
	_, err = env.engine.Reconfigure(env.ctx(env.owner, newOwner), bad)
	assert.IsErr(t, ErrInvalidPolicy, err)

	p, err := env.engine.Policy()
	require.NoError(t, err)
	require.Equal(t, int64(1), p.Version)
	require.Empty(t, env.recorder.Events())

	rejected, err := env.engine.Reconfigure(env.ctx(env.owner, newOwner), conf)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("p1"), []byte("p3")}, rejected)
	require.Equal(t, []string{TopicReconfigured, TopicRejected, TopicRejected}, env.recorder.Topics())

	p, err = env.engine.Policy()
	require.NoError(t, err)
	require.Equal(t, int64(2), p.Version)
	require.True(t, newOwner.Address().Equals(p.Owner))

	for _, id := range []string{"p1", "p3"} {
		action, err := env.engine.Action([]byte(id))
		require.NoError(t, err)
		require.Equal(t, StatusRejected, action.Status)
	}
	executed, err := env.engine.Action([]byte("p2"))
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, executed.Status)

	// Removed signers are gone, rejected ids can be proposed again.
	ok, err := env.engine.IsSigner(b.Address())
	require.NoError(t, err)
	require.False(t, ok)
	out := env.propose(t, a, "p1")
	require.Equal(t, StatusExecuted, out.Status)

	_, err = env.engine.Countersign(env.ctx(newOwner), newOwner.Address(), []byte("p3"))
	assert.IsErr(t, ErrAlreadyFinalized, err)
}

func TestReconfigureNotConfigured(t *testing.T) {
	auth := &quorumtest.CtxAuth{Key: "auth"}
	owner := quorumtest.NewCondition()
	e := NewEngine(store.MemStore(), auth)
	conf := Configuration{Owner: owner.Address(), MasterWeight: 1}
	_, err := e.Reconfigure(auth.SetConditions(context.Background(), owner), conf)
	assert.IsErr(t, errors.ErrNotFound, err)
}

func TestQueriesDoNotMutate(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 1)
	env.propose(t, env.signers[0], "q")

	snapshot := func() []store.Model {
		it, err := env.db.Iterator(nil, nil)
		require.NoError(t, err)
		defer it.Release()
		var res []store.Model
		for {
			k, v, err := it.Next()
			if errors.ErrIteratorDone.Is(err) {
				return res
			}
			require.NoError(t, err)
			res = append(res, store.Pair(k, v))
		}
	}
	before := snapshot()
	for i := 0; i < 3; i++ {
		_, err := env.engine.WeightOf(env.addr(0))
		require.NoError(t, err)
		_, err = env.engine.Action([]byte("q"))
		require.NoError(t, err)
		_, err = env.engine.Action([]byte("missing"))
		assert.IsErr(t, ErrUnknownAction, err)
		_, err = env.engine.Signers()
		require.NoError(t, err)
		_, err = env.engine.Pending()
		require.NoError(t, err)
	}
	require.Equal(t, before, snapshot())
}

func TestAtomicRecoversPanic(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 1)

	key := []byte("partial")
	events, err := env.engine.atomic(env.ctx(), "test", func(db quorum.KVStore) ([]quorum.Event, error) {
		if err := db.Set(key, []byte("value")); err != nil {
			return nil, err
		}
		panic("boom")
	})
	assert.IsErr(t, errors.ErrPanic, err)
	require.Empty(t, events)

	has, err := env.db.Has(key)
	require.NoError(t, err)
	require.False(t, has, "panicking operation must not write")
	require.Empty(t, env.recorder.Events())
}

func TestNotifierCanQueryEngine(t *testing.T) {
	env := newTestEnv(t, stellarDefaults, 1, 1, 1)

	var seen []Status
	env.engine.notifier = quorum.NotifierFunc(func(ctx quorum.Context, topic string, key []byte, value interface{}) {
		if topic != TopicProposed && topic != TopicExecuted {
			return
		}
		a, err := env.engine.Action(key)
		if err != nil {
			t.Errorf("cannot read action from the sink: %+v", err)
			return
		}
		seen = append(seen, a.Status)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := env.engine.Propose(env.ctx(env.signers[0]), env.addr(0), []byte("reentrant"), transfer()); err != nil {
			t.Errorf("cannot propose: %+v", err)
			return
		}
		if _, err := env.engine.Countersign(env.ctx(env.signers[1]), env.addr(1), []byte("reentrant")); err != nil {
			t.Errorf("cannot countersign: %+v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine blocked while publishing notifications")
	}

	require.Equal(t, []Status{StatusProposed, StatusExecuted}, seen)
}
