package quorumtest

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/iov-one/quorum"
)

var condSequence uint64

// NewCondition returns a new, unique condition. Each call returns a
// different value.
func NewCondition() quorum.Condition {
	seq := atomic.AddUint64(&condSequence, 1)
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], seq)
	return quorum.NewCondition("test", "sequence", data[:])
}
