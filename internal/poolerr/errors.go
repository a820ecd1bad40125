// Package poolerr defines the sentinel error taxonomy shared by every
// component of the pool engine and ASP service, following the teacher's
// per-package "var ( ... = errors.New(...) )" convention but centralized
// here since the taxonomy itself spans packages (recovery, tree, witness,
// prover, ASP all surface the same handful of kinds to their callers).
package poolerr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers compare with errors.Is.
var (
	// ErrFieldOutOfRange is returned when a consumed field element is >= p.
	ErrFieldOutOfRange = errors.New("field element out of range")

	// ErrTreeLeafNotFound is returned when a proof is requested for an
	// unknown leaf.
	ErrTreeLeafNotFound = errors.New("merkle leaf not found")

	// ErrTreeProofInvalid is returned when a proof fails verification.
	ErrTreeProofInvalid = errors.New("merkle proof invalid")

	// ErrRecoveryChildNotFound is returned when a merge/withdrawal child
	// index search exceeds MAX_CHILD_INDEX.
	ErrRecoveryChildNotFound = errors.New("recovery: child index not found")

	// ErrRecoveryNullifierMismatch indicates an internal consistency
	// failure between a candidate event and a known deposit.
	ErrRecoveryNullifierMismatch = errors.New("recovery: nullifier mismatch")

	// ErrRecoveryChainInconsistency indicates the chain-order event graph
	// could not be reconciled with the expected merge/withdrawal shape.
	ErrRecoveryChainInconsistency = errors.New("recovery: chain inconsistency")

	// ErrWitnessInvariantViolated covers withdrawnValue > existingValue,
	// malformed siblings, label not in ASP, and similar pre-prover checks.
	ErrWitnessInvariantViolated = errors.New("witness invariant violated")

	// ErrProverFailure is a passthrough wrapper for opaque prover errors.
	ErrProverFailure = errors.New("prover failure")

	// ErrChainUnavailable indicates the event feed or a contract read
	// timed out or otherwise failed transiently.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrRootPublishFailed indicates an on-chain root submission was
	// rejected or reverted.
	ErrRootPublishFailed = errors.New("root publish failed")

	// ErrASPNotConfigured names an ASP-dependent operation attempted before
	// the service has been initialized. No operation in this module
	// returns it: asp.Service does not check for initialization.
	ErrASPNotConfigured = errors.New("asp service not configured")

	// ErrLabelNotApproved indicates a label has no ASP inclusion proof.
	ErrLabelNotApproved = errors.New("label not approved by asp")
)

// Wrap annotates a sentinel kind with additional context while preserving
// errors.Is matching against kind.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
