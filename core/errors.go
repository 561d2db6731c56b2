package core

import "errors"

// Error kinds for the consensus core (§7). All are local: the caller
// logs them and drops the offending message. None are fatal.
var (
	ErrBadSignature        = errors.New("core: bad signature")
	ErrUnknownSender       = errors.New("core: unknown sender")
	ErrStale               = errors.New("core: stale message")
	ErrFuture              = errors.New("core: future message")
	ErrDuplicate           = errors.New("core: duplicate message")
	ErrInconsistentSubject = errors.New("core: inconsistent subject")
	ErrMissingSeal         = errors.New("core: missing commit seal")
	ErrSealSenderMismatch  = errors.New("core: commit seal sender mismatch")
	ErrInvalidProposal     = errors.New("core: invalid proposal")
	ErrWrongProposer       = errors.New("core: message not from expected proposer")
)
