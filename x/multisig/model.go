package multisig

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
)

const (
	// MaxWeight is the greatest weight a single signer can have.
	MaxWeight Weight = 1<<16 - 1

	// MaxSigners limits the number of listed signers. The owner is not
	// counted.
	MaxSigners = 100

	// DefaultMasterWeight is the weight of the owner unless configured
	// otherwise.
	DefaultMasterWeight Weight = 1

	maxActionIDLength = 64
	maxMemoLength     = 128
)

// Weight represents the strength of a signature.
type Weight int32

func (w Weight) Validate() error {
	if w < 0 {
		return errors.Wrapf(ErrInvalidPolicy, "weight %d is negative", w)
	}
	if w > MaxWeight {
		return errors.Wrapf(ErrInvalidPolicy,
			"weight is %d and must not be greater than %d", w, MaxWeight)
	}
	return nil
}

// Signer is an identity granted approval weight.
type Signer struct {
	Address quorum.Address `json:"address"`
	Weight  Weight         `json:"weight"`
}

func (s Signer) Validate() error {
	if err := s.Address.Validate(); err != nil {
		return errors.Wrap(ErrInvalidPolicy, err.Error())
	}
	return s.Weight.Validate()
}

// Level is one of the three approval levels.
type Level int32

const (
	LevelLow Level = iota + 1
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return fmt.Sprintf("Level(%d)", int32(l))
	}
}

// ActionClass decides which approval level an action requires.
type ActionClass int32

const (
	// ClassSensitiveTransfer is a funds transfer. This is the default
	// class and it requires the medium level.
	ClassSensitiveTransfer ActionClass = iota
	// ClassAllowTrust authorizes another party to hold an asset. It
	// requires the low level.
	ClassAllowTrust
	// ClassAccountChange modifies the account itself. It requires the
	// high level.
	ClassAccountChange
)

var classNames = map[ActionClass]string{
	ClassSensitiveTransfer: "transfer",
	ClassAllowTrust:        "allow_trust",
	ClassAccountChange:     "account_change",
}

func (c ActionClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ActionClass(%d)", int32(c))
}

// ParseActionClass returns the class of given name.
func ParseActionClass(name string) (ActionClass, error) {
	for c, n := range classNames {
		if n == strings.ToLower(name) {
			return c, nil
		}
	}
	return 0, errors.Wrapf(errors.ErrInvalidInput, "unknown action class %q", name)
}

// Level returns the approval level required by this class.
func (c ActionClass) Level() (Level, error) {
	switch c {
	case ClassAllowTrust:
		return LevelLow, nil
	case ClassSensitiveTransfer:
		return LevelMedium, nil
	case ClassAccountChange:
		return LevelHigh, nil
	default:
		return 0, errors.Wrapf(errors.ErrInvalidInput, "unknown action class %d", int32(c))
	}
}

func (c ActionClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ActionClass) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "action class must be a string")
	}
	v, err := ParseActionClass(name)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Thresholds is the approval policy: the minimum accumulated weight of each
// level.
type Thresholds struct {
	Low    Weight `json:"low"`
	Medium Weight `json:"medium"`
	High   Weight `json:"high"`
}

// Validate ensures 0 <= low <= medium <= high.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.Medium < 0 || t.High < 0 {
		return errors.Wrap(ErrInvalidPolicy, "negative threshold")
	}
	if t.Low > t.Medium || t.Medium > t.High {
		return errors.Wrapf(ErrInvalidPolicy,
			"thresholds must not decrease: low %d, medium %d, high %d", t.Low, t.Medium, t.High)
	}
	return nil
}

// Of returns the threshold of given level.
func (t Thresholds) Of(l Level) (Weight, error) {
	switch l {
	case LevelLow:
		return t.Low, nil
	case LevelMedium:
		return t.Medium, nil
	case LevelHigh:
		return t.High, nil
	default:
		return 0, errors.Wrapf(errors.ErrInvalidInput, "unknown level %d", int32(l))
	}
}

// RequiredWeight returns the weight an action of given class must
// accumulate before it is executed.
func (t Thresholds) RequiredWeight(c ActionClass) (Weight, error) {
	l, err := c.Level()
	if err != nil {
		return 0, err
	}
	return t.Of(l)
}

// Configuration is the full, replaceable registry content.
type Configuration struct {
	Owner        quorum.Address `json:"owner"`
	MasterWeight Weight         `json:"master_weight"`
	Signers      []Signer       `json:"signers"`
	Thresholds   Thresholds     `json:"thresholds"`
}

// NewConfiguration returns a configuration where the owner has the default
// master weight.
func NewConfiguration(owner quorum.Address, t Thresholds, signers ...Signer) Configuration {
	return Configuration{
		Owner:        owner,
		MasterWeight: DefaultMasterWeight,
		Signers:      signers,
		Thresholds:   t,
	}
}

// Members returns all signers, starting with the owner at the master
// weight, in configured order.
func (c Configuration) Members() []Signer {
	res := make([]Signer, 0, len(c.Signers)+1)
	res = append(res, Signer{Address: c.Owner, Weight: c.MasterWeight})
	return append(res, c.Signers...)
}

// Validate returns ErrInvalidPolicy unless the configuration can be
// stored. Every threshold must be reachable by the total signers weight.
func (c Configuration) Validate() error {
	if err := c.Owner.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidPolicy, "owner: %s", err)
	}
	if len(c.Signers) > MaxSigners {
		return errors.Wrapf(ErrInvalidPolicy, "too many signers: %d", len(c.Signers))
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}

	var total int64
	seen := make(map[string]struct{}, len(c.Signers)+1)
	for i, s := range c.Members() {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "signer %d", i)
		}
		if _, ok := seen[string(s.Address)]; ok {
			return errors.Wrapf(ErrInvalidPolicy, "signer %s listed twice", s.Address)
		}
		seen[string(s.Address)] = struct{}{}
		total += int64(s.Weight)
	}
	if int64(c.Thresholds.High) > total {
		return errors.Wrapf(ErrInvalidPolicy,
			"high threshold %d is greater than total weight %d", c.Thresholds.High, total)
	}
	return nil
}

// Policy is the stored registry header: everything but the signer list.
type Policy struct {
	Owner        quorum.Address `json:"owner"`
	MasterWeight Weight         `json:"master_weight"`
	Thresholds   Thresholds     `json:"thresholds"`
	// Version is incremented by every reconfiguration. First
	// configuration has version 1.
	Version int64 `json:"version"`
}

var _ orm.Model = (*Policy)(nil)

func (p *Policy) Validate() error {
	if err := p.Owner.Validate(); err != nil {
		return errors.Wrap(err, "owner")
	}
	if err := p.MasterWeight.Validate(); err != nil {
		return errors.Wrap(err, "master weight")
	}
	if p.Version < 1 {
		return errors.Wrap(errors.ErrInvalidState, "version")
	}
	return p.Thresholds.Validate()
}

// member is how a signer is persisted. Position keeps the configured order.
type member struct {
	Address  quorum.Address
	Weight   Weight
	Position int32
}

var _ orm.Model = (*member)(nil)

func (m *member) Validate() error {
	if err := m.Address.Validate(); err != nil {
		return errors.Wrap(err, "address")
	}
	if m.Position < 0 {
		return errors.Wrap(errors.ErrInvalidState, "negative position")
	}
	return m.Weight.Validate()
}

// Payload describes what an action does once executed.
type Payload struct {
	Class       ActionClass    `json:"class"`
	Amount      int64          `json:"amount"`
	Destination quorum.Address `json:"destination,omitempty"`
	Memo        string         `json:"memo,omitempty"`
}

// Validate returns ErrInvalidInput for a malformed payload. A transfer must
// move a positive amount. Destination is optional, but must be a valid
// address when set.
func (p Payload) Validate() error {
	if _, err := p.Class.Level(); err != nil {
		return err
	}
	if p.Amount < 0 {
		return errors.Wrap(errors.ErrInvalidInput, "negative amount")
	}
	if len(p.Memo) > maxMemoLength {
		return errors.Wrapf(errors.ErrInvalidInput, "memo longer than %d", maxMemoLength)
	}
	if p.Class == ClassSensitiveTransfer {
		if p.Amount == 0 {
			return errors.Wrap(errors.ErrInvalidInput, "transfer amount must be positive")
		}
	}
	if len(p.Destination) != 0 {
		if err := p.Destination.Validate(); err != nil {
			return errors.Wrap(err, "destination")
		}
	}
	return nil
}

// Status of a pending action.
type Status int32

const (
	StatusProposed Status = iota + 1
	StatusExecuted
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusExecuted:
		return "executed"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Terminal returns true for statuses that can never change.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected
}

// PendingAction is a proposed action together with its approval state.
type PendingAction struct {
	ID                []byte           `json:"id"`
	Proposer          quorum.Address   `json:"proposer"`
	Payload           Payload          `json:"payload"`
	AccumulatedWeight int64            `json:"accumulated_weight"`
	SignedBy          []quorum.Address `json:"signed_by"`
	Status            Status           `json:"status"`
	// Sequence and CreatedAt mark the creation. Sequence grows with every
	// proposal, including re-proposals of a reused id.
	Sequence  int64           `json:"sequence"`
	CreatedAt quorum.UnixTime `json:"created_at"`
	// PolicyVersion is the registry version the action was proposed under.
	PolicyVersion int64 `json:"policy_version"`
}

var _ orm.Model = (*PendingAction)(nil)

func (a *PendingAction) Validate() error {
	if err := validateActionID(a.ID); err != nil {
		return err
	}
	if err := a.Proposer.Validate(); err != nil {
		return errors.Wrap(err, "proposer")
	}
	if err := a.Payload.Validate(); err != nil {
		return errors.Wrap(err, "payload")
	}
	if a.AccumulatedWeight < 0 {
		return errors.Wrap(errors.ErrInvalidState, "negative accumulated weight")
	}
	if len(a.SignedBy) == 0 || !a.SignedBy[0].Equals(a.Proposer) {
		return errors.Wrap(errors.ErrInvalidState, "proposer must sign first")
	}
	for i, s := range a.SignedBy {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "signed by %d", i)
		}
	}
	switch a.Status {
	case StatusProposed, StatusExecuted, StatusRejected:
	default:
		return errors.Wrapf(errors.ErrInvalidState, "status %d", int32(a.Status))
	}
	if a.Sequence < 1 {
		return errors.Wrap(errors.ErrInvalidState, "sequence")
	}
	return nil
}

// HasSigned returns true if given address already contributed its weight.
func (a *PendingAction) HasSigned(addr quorum.Address) bool {
	for _, s := range a.SignedBy {
		if s.Equals(addr) {
			return true
		}
	}
	return false
}

func validateActionID(id []byte) error {
	switch n := len(id); {
	case n == 0:
		return errors.Wrap(errors.ErrEmpty, "action id")
	case n > maxActionIDLength:
		return errors.Wrapf(errors.ErrInvalidInput, "action id longer than %d", maxActionIDLength)
	}
	return nil
}

// Outcome reports the state of an action after a successful call.
type Outcome struct {
	ActionID          []byte `json:"action_id"`
	Status            Status `json:"status"`
	AccumulatedWeight int64  `json:"accumulated_weight"`
	RequiredWeight    Weight `json:"required_weight"`
}

// Executed returns true if the action reached its threshold.
func (o *Outcome) Executed() bool {
	return o.Status == StatusExecuted
}

func newOutcome(a *PendingAction, required Weight) *Outcome {
	return &Outcome{
		ActionID:          a.ID,
		Status:            a.Status,
		AccumulatedWeight: a.AccumulatedWeight,
		RequiredWeight:    required,
	}
}
