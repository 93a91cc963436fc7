package multisig

import (
	"github.com/iov-one/quorum"
)

// Notification topics.
const (
	TopicConfigured    = "multisig_configured"
	TopicReconfigured  = "multisig_reconfigured"
	TopicProposed      = "tx_proposed"
	TopicCountersigned = "tx_countersigned"
	TopicExecuted      = "tx_executed"
	TopicRejected      = "tx_rejected"
)

const (
	registryEventKey   = "registry"
	reasonReconfigured = "registry reconfigured"
)

// ConfiguredEvent is published when the registry content is set or
// replaced.
type ConfiguredEvent struct {
	Owner      quorum.Address `json:"owner"`
	Version    int64          `json:"version"`
	Signers    []Signer       `json:"signers"`
	Thresholds Thresholds     `json:"thresholds"`
}

// ProposedEvent is published for every accepted proposal.
type ProposedEvent struct {
	ActionID          []byte         `json:"action_id"`
	Proposer          quorum.Address `json:"proposer"`
	Payload           Payload        `json:"payload"`
	AccumulatedWeight int64          `json:"accumulated_weight"`
	RequiredWeight    Weight         `json:"required_weight"`
}

// CountersignedEvent is published for every accepted countersignature.
type CountersignedEvent struct {
	ActionID          []byte         `json:"action_id"`
	Signer            quorum.Address `json:"signer"`
	AccumulatedWeight int64          `json:"accumulated_weight"`
	RequiredWeight    Weight         `json:"required_weight"`
}

// ExecutedEvent is published once per action, when it reaches its
// threshold.
type ExecutedEvent struct {
	ActionID          []byte           `json:"action_id"`
	Payload           Payload          `json:"payload"`
	AccumulatedWeight int64            `json:"accumulated_weight"`
	SignedBy          []quorum.Address `json:"signed_by"`
}

// RejectedEvent is published when a live action is invalidated.
type RejectedEvent struct {
	ActionID []byte `json:"action_id"`
	Reason   string `json:"reason"`
}

func configuredEvent(topic string, c Configuration, version int64) quorum.Event {
	return quorum.Event{
		Topic: topic,
		Key:   []byte(registryEventKey),
		Value: ConfiguredEvent{
			Owner:      c.Owner,
			Version:    version,
			Signers:    c.Members(),
			Thresholds: c.Thresholds,
		},
	}
}

func executedEvent(a *PendingAction) quorum.Event {
	return quorum.Event{
		Topic: TopicExecuted,
		Key:   a.ID,
		Value: ExecutedEvent{
			ActionID:          a.ID,
			Payload:           a.Payload,
			AccumulatedWeight: a.AccumulatedWeight,
			SignedBy:          a.SignedBy,
		},
	}
}
