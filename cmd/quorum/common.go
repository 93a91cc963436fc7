package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/crypto"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/store"
	"github.com/iov-one/quorum/x/multisig"
	"github.com/iov-one/quorum/x/notify"
	"github.com/iov-one/quorum/x/sigs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendermint/tendermint/libs/log"
)

// logOutput is where all log messages are written to.
var logOutput io.Writer = os.Stderr

// addressPrefix is the human readable part of bech32 encoded addresses.
const addressPrefix = "qrm"

// nodeFlags are the flags shared by all commands operating on a local
// registry database.
type nodeFlags struct {
	db      *string
	chainID *string
	debug   *bool
	metrics *bool
}

func registerNodeFlags(fl *flag.FlagSet) nodeFlags {
	return nodeFlags{
		db: fl.String("db", env("QUORUM_DB", filepath.Join(os.Getenv("HOME"), ".quorum", "data")),
			"Path to the registry database directory. You can use QUORUM_DB environment variable to set it."),
		chainID: fl.String("chain-id", env("QUORUM_CHAIN_ID", "quorum-local"),
			"Chain ID that all signatures are bound to. You can use QUORUM_CHAIN_ID environment variable to set it."),
		debug:   fl.Bool("debug", false, "Log debug messages."),
		metrics: fl.Bool("metrics", false, "Print notification counters after the command is done."),
	}
}

func keyFlag(fl *flag.FlagSet) *string {
	return fl.String("key", env("QUORUM_PRIV_KEY", filepath.Join(os.Getenv("HOME"), ".quorum.priv.key")),
		"Path to the private key file that the request should be signed with. You can use QUORUM_PRIV_KEY environment variable to set it.")
}

// node is a registry engine operating on a local database.
type node struct {
	db       *store.LevelDB
	engine   *multisig.Engine
	notifier quorum.Notifier
	logger   log.Logger
	chainID  string
	registry *prometheus.Registry
	out      io.Writer
	printMet bool
}

func openNode(fl nodeFlags, out io.Writer) (*node, error) {
	if !quorum.IsValidChainID(*fl.chainID) {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "invalid chain id %q", *fl.chainID)
	}

	logger := log.NewTMLogger(log.NewSyncWriter(logOutput))
	if *fl.debug {
		logger = log.NewFilter(logger, log.AllowDebug())
	} else {
		logger = log.NewFilter(logger, log.AllowInfo())
	}

	reg := prometheus.NewRegistry()
	metrics, err := notify.NewMetrics("quorum", reg)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}

	if err := os.MkdirAll(*fl.db, 0700); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "create %q: %s", *fl.db, err)
	}
	db, err := store.OpenLevelDB(*fl.db)
	if err != nil {
		return nil, err
	}

	notifier := notify.Multi{notify.Logger{Logger: logger}, metrics}
	return &node{
		db:       db,
		engine:   newEngine(db, notifier, logger),
		notifier: notifier,
		logger:   logger,
		chainID:  *fl.chainID,
		registry: reg,
		out:      out,
		printMet: *fl.metrics,
	}, nil
}

// Close releases the database. When requested, collected notification
// counters are printed before.
func (n *node) Close() error {
	if n.printMet {
		if err := printMetrics(n.out, n.registry); err != nil {
			n.db.Close()
			return err
		}
	}
	return n.db.Close()
}

func newEngine(db quorum.CacheableKVStore, notifier quorum.Notifier, logger log.Logger) *multisig.Engine {
	return multisig.NewEngine(db, sigs.Authenticate{},
		multisig.WithNotifier(notifier),
		multisig.WithLogger(logger))
}

func (n *node) context() quorum.Context {
	ctx := quorum.WithLogger(context.Background(), n.logger)
	return quorum.WithChainID(ctx, n.chainID)
}

// signed authorizes given request with all the private keys and runs fn
// with a context that carries the signer conditions. The address of the
// first key is passed to fn as the caller. fn is given an engine bound to
// the same cache wrap that holds the key sequences, so that the state change
// and the consumed sequences are written together or not at all. Engine
// notifications are published only after that write.
func (n *node) signed(keys []crypto.PrivateKey, request interface{}, fn func(quorum.Context, *multisig.Engine, quorum.Address) error) error {
	if len(keys) == 0 {
		return errors.Wrap(errors.ErrUnauthorized, "no signing key")
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "serialize request: %s", err)
	}

	cache := n.db.CacheWrap()
	defer cache.Discard()

	signatures := make([]*sigs.StdSignature, 0, len(keys))
	for _, key := range keys {
		seq, err := sigs.NextSequence(cache, key.PublicKey())
		if err != nil {
			return err
		}
		sig, err := sigs.Sign(key, payload, n.chainID, seq)
		if err != nil {
			return err
		}
		signatures = append(signatures, sig)
	}
	ctx, err := sigs.Authorize(n.context(), cache, payload, signatures)
	if err != nil {
		return err
	}

	pending := notify.NewRecorder()
	if err := fn(ctx, newEngine(cache, pending, n.logger), keys[0].PublicKey().Address()); err != nil {
		return err
	}
	if err := cache.Write(); err != nil {
		return err
	}
	for _, ev := range pending.Events() {
		n.notifier.Emit(ctx, ev.Topic, ev.Key, ev.Value)
	}
	return nil
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidState, "gather metrics: %s", err)
	}
	var lines []string
	for _, f := range families {
		for _, m := range f.GetMetric() {
			name := f.GetName()
			for _, l := range m.GetLabel() {
				name += fmt.Sprintf(" %s=%s", l.GetName(), l.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s %v", name, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "serialize: %s", err)
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
