package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/crypto"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/x/multisig"
)

func cmdInit(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Initialize the registry database using the "multisig" section of a genesis
file. Genesis content is trusted and does not require any signature.
`)
		fl.PrintDefaults()
	}
	var (
		genesisFl = fl.String("genesis", "genesis.json", "Path to the genesis file.")
		nodeFl    = registerNodeFlags(fl)
	)
	fl.Parse(args)

	opts, err := quorum.LoadOptions(*genesisFl)
	if err != nil {
		return fmt.Errorf("cannot load genesis: %s", err)
	}
	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	cache := n.db.CacheWrap()
	defer cache.Discard()
	var initializer multisig.Initializer
	if err := initializer.FromGenesis(opts, cache); err != nil {
		return errors.Wrap(err, "cannot initialize from genesis")
	}
	if err := cache.Write(); err != nil {
		return fmt.Errorf("cannot write: %s", err)
	}
	return nil
}

func cmdConfigure(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Configure an empty registry. The configuration is read from the standard input
as a JSON document, for example:

  {
    "owner": "<hex address>",
    "master_weight": 1,
    "signers": [{"address": "<hex address>", "weight": 1}],
    "thresholds": {"low": 0, "medium": 2, "high": 2}
  }

The request must be signed by the owner.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = keyFlag(fl)
		nodeFl    = registerNodeFlags(fl)
	)
	fl.Parse(args)

	c, err := readConfiguration(input)
	if err != nil {
		return err
	}
	key, err := crypto.LoadPrivateKey(*keyPathFl)
	if err != nil {
		return fmt.Errorf("cannot load private key: %s", err)
	}
	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	request := signedRequest{Op: "configure", Body: c}
	return n.signed([]crypto.PrivateKey{key}, request, func(ctx quorum.Context, engine *multisig.Engine, _ quorum.Address) error {
		return engine.Configure(ctx, c)
	})
}

func cmdReconfigure(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Replace the registry configuration. The configuration is read from the
standard input, using the same format as the configure command.

All pending actions are rejected and their ids are printed out. The request
must be signed by the current owner and, if the owner changes, by the new
owner as well.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl      = keyFlag(fl)
		newOwnerPathFl = fl.String("new-owner-key", "", "Path to the private key file of the new owner, if the owner changes.")
		nodeFl         = registerNodeFlags(fl)
	)
	fl.Parse(args)

	c, err := readConfiguration(input)
	if err != nil {
		return err
	}
	key, err := crypto.LoadPrivateKey(*keyPathFl)
	if err != nil {
		return fmt.Errorf("cannot load private key: %s", err)
	}
	keys := []crypto.PrivateKey{key}
	if *newOwnerPathFl != "" {
		newOwner, err := crypto.LoadPrivateKey(*newOwnerPathFl)
		if err != nil {
			return fmt.Errorf("cannot load new owner private key: %s", err)
		}
		if !newOwner.PublicKey().Address().Equals(key.PublicKey().Address()) {
			keys = append(keys, newOwner)
		}
	}
	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	var rejected [][]byte
	request := signedRequest{Op: "reconfigure", Body: c}
	err = n.signed(keys, request, func(ctx quorum.Context, engine *multisig.Engine, _ quorum.Address) error {
		var err error
		rejected, err = engine.Reconfigure(ctx, c)
		return err
	})
	if err != nil {
		return err
	}
	for _, id := range rejected {
		if _, err := fmt.Fprintln(output, hex.EncodeToString(id)); err != nil {
			return err
		}
	}
	return nil
}

func cmdPropose(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Propose a new action signed by the owner of the private key. When the id is
not provided, it is derived from the proposal content.

The proposer weight is counted immediately, so a proposal of a heavy enough
signer is executed right away.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = keyFlag(fl)
		idFl      = flHex(fl, "id", "", "Hex encoded action ID. Optional.")
		classFl   = flClass(fl, "class", "transfer", "Action class: transfer, allow_trust or account_change.")
		amountFl  = fl.Int64("amount", 0, "Transfer amount.")
		destFl    = flAddress(fl, "dest", "", "Transfer destination address.")
		memoFl    = fl.String("memo", "", "Optional memo.")
		nodeFl    = registerNodeFlags(fl)
	)
	fl.Parse(args)

	payload := multisig.Payload{
		Class:       *classFl,
		Amount:      *amountFl,
		Destination: *destFl,
		Memo:        *memoFl,
	}
	key, err := crypto.LoadPrivateKey(*keyPathFl)
	if err != nil {
		return fmt.Errorf("cannot load private key: %s", err)
	}
	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	var outcome *multisig.Outcome
	request := signedRequest{Op: "propose", ID: *idFl, Body: payload}
	err = n.signed([]crypto.PrivateKey{key}, request, func(ctx quorum.Context, engine *multisig.Engine, proposer quorum.Address) error {
		var err error
		outcome, err = engine.Propose(ctx, proposer, *idFl, payload)
		return err
	})
	if err != nil {
		return err
	}
	return writeJSON(output, viewOutcome(outcome))
}

func cmdCountersign(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Countersign a proposed action with the private key. The action is executed
once the accumulated weight reaches the threshold of its class.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = keyFlag(fl)
		idFl      = flHex(fl, "id", "", "Hex encoded action ID.")
		nodeFl    = registerNodeFlags(fl)
	)
	fl.Parse(args)

	if len(*idFl) == 0 {
		flagDie("id is required")
	}
	key, err := crypto.LoadPrivateKey(*keyPathFl)
	if err != nil {
		return fmt.Errorf("cannot load private key: %s", err)
	}
	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	var outcome *multisig.Outcome
	request := signedRequest{Op: "countersign", ID: *idFl}
	err = n.signed([]crypto.PrivateKey{key}, request, func(ctx quorum.Context, engine *multisig.Engine, signer quorum.Address) error {
		var err error
		outcome, err = engine.Countersign(ctx, signer, *idFl)
		return err
	})
	if err != nil {
		return err
	}
	return writeJSON(output, viewOutcome(outcome))
}

func cmdShow(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out the state of a single action.
`)
		fl.PrintDefaults()
	}
	var (
		idFl   = flHex(fl, "id", "", "Hex encoded action ID.")
		nodeFl = registerNodeFlags(fl)
	)
	fl.Parse(args)

	if len(*idFl) == 0 {
		flagDie("id is required")
	}
	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	a, err := n.engine.Action(*idFl)
	if err != nil {
		return err
	}
	return writeJSON(output, actionView{ID: hex.EncodeToString(a.ID), PendingAction: a})
}

func cmdPending(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out all actions that await countersignatures, oldest first.
`)
		fl.PrintDefaults()
	}
	var (
		nodeFl = registerNodeFlags(fl)
	)
	fl.Parse(args)

	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	actions, err := n.engine.Pending()
	if err != nil {
		return err
	}
	views := make([]actionView, len(actions))
	for i, a := range actions {
		views[i] = actionView{ID: hex.EncodeToString(a.ID), PendingAction: a}
	}
	return writeJSON(output, views)
}

func cmdSigners(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out the registry policy together with all signers and their weights.
`)
		fl.PrintDefaults()
	}
	var (
		nodeFl = registerNodeFlags(fl)
	)
	fl.Parse(args)

	n, err := openNode(nodeFl, output)
	if err != nil {
		return fmt.Errorf("cannot open database: %s", err)
	}
	defer n.Close()

	policy, err := n.engine.Policy()
	if err != nil {
		return err
	}
	signers, err := n.engine.Signers()
	if err != nil {
		return err
	}
	view := registryView{Policy: policy}
	for _, s := range signers {
		bech, err := s.Address.Bech32(addressPrefix)
		if err != nil {
			return err
		}
		view.Signers = append(view.Signers, signerView{
			Address: s.Address,
			Bech32:  bech,
			Weight:  s.Weight,
		})
	}
	return writeJSON(output, view)
}

// signedRequest is the content signed by the caller keys.
type signedRequest struct {
	Op   string      `json:"op"`
	ID   []byte      `json:"id,omitempty"`
	Body interface{} `json:"body,omitempty"`
}

type outcomeView struct {
	ID                string          `json:"id"`
	Status            multisig.Status `json:"status"`
	AccumulatedWeight int64           `json:"accumulated_weight"`
	RequiredWeight    multisig.Weight `json:"required_weight"`
}

func viewOutcome(o *multisig.Outcome) outcomeView {
	return outcomeView{
		ID:                hex.EncodeToString(o.ActionID),
		Status:            o.Status,
		AccumulatedWeight: o.AccumulatedWeight,
		RequiredWeight:    o.RequiredWeight,
	}
}

type actionView struct {
	ID string `json:"id"`
	*multisig.PendingAction
}

type signerView struct {
	Address quorum.Address  `json:"address"`
	Bech32  string          `json:"bech32"`
	Weight  multisig.Weight `json:"weight"`
}

type registryView struct {
	Policy  *multisig.Policy `json:"policy"`
	Signers []signerView     `json:"signers"`
}

// readConfiguration decodes a registry configuration. Master weight
// defaults to 1 when omitted.
func readConfiguration(r io.Reader) (multisig.Configuration, error) {
	c := multisig.Configuration{MasterWeight: multisig.DefaultMasterWeight}
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		return c, fmt.Errorf("cannot read configuration: %s", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, errors.Wrapf(errors.ErrInvalidInput, "cannot decode configuration: %s", err)
	}
	return c, nil
}
