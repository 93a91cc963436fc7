package multisig

import (
	"github.com/iov-one/quorum/errors"
)

// x/multisig reserves 70 ~ 79.
var (
	ErrNotASigner         = errors.Register(70, "not a signer")
	ErrInvalidPolicy      = errors.Register(71, "invalid policy")
	ErrDuplicateProposal  = errors.Register(72, "duplicate proposal")
	ErrUnknownAction      = errors.Register(73, "unknown action")
	ErrAlreadyFinalized   = errors.Register(74, "already finalized")
	ErrDuplicateSignature = errors.Register(75, "duplicate signature")
)
