package fabric

import "errors"

// Fabric Table error taxonomy.
//
// These sentinels give concrete names to the conceptual error taxonomy
// of the commit/revert state machine. They are distinct from the older
// CRUD-table errors below (ErrTableFull, ErrFabricNotFound, ...), which
// remain for the simple compatibility surface of Table.
var (
	// ErrInvalidArgument is returned for malformed call arguments that
	// are rejected before any state machine logic runs, such as
	// Delete(FabricIndexInvalid).
	ErrInvalidArgument = errors.New("fabric: invalid argument")

	// ErrIncorrectState is returned for API misuse against the pending
	// state machine: Commit with nothing pending, Update while a root
	// is pending, Add while an update is pending, and so on.
	ErrIncorrectState = errors.New("fabric: incorrect state for requested operation")

	// ErrInvalidFabricIndex is returned when a fabric index argument is
	// out of the valid range, or does not name an initialized fabric
	// where one is required.
	ErrInvalidFabricIndex = errors.New("fabric: invalid fabric index")

	// ErrFabricExists is returned when an incoming NOC chain collides
	// with an already-committed fabric (same root public key and fabric
	// id pair).
	ErrFabricExists = errors.New("fabric: fabric already exists")

	// ErrFabricMismatchOnIca is returned when the ICAC carries a fabric
	// id that disagrees with the NOC's.
	ErrFabricMismatchOnIca = errors.New("fabric: ICAC fabric id does not match NOC")

	// ErrWrongCertDn is returned when the RCAC carries a fabric id that
	// disagrees with the NOC's.
	ErrWrongCertDn = errors.New("fabric: certificate DN mismatch")

	// ErrUnsupportedCertFormat is the catch-all chain-validation failure:
	// any underlying parse, signature, or structural failure surfaces as
	// this error, except for ErrWrongNodeId which propagates distinctly.
	ErrUnsupportedCertFormat = errors.New("fabric: unsupported certificate format")

	// ErrWrongNodeId is returned when an expected fabric id was supplied
	// (as during UpdatePendingFabric) and the validated chain's fabric
	// id does not match it.
	ErrWrongNodeId = errors.New("fabric: certificate chain does not match expected fabric")

	// ErrInvalidPublicKey is returned when an injected operational key's
	// public key does not match the NOC's bound public key.
	ErrInvalidPublicKey = errors.New("fabric: operational key does not match NOC public key")

	// ErrKeyNotFound is returned by SignWithOpKeypair when no
	// operational key is available for the fabric.
	ErrKeyNotFound = errors.New("fabric: no operational key available")

	// ErrNoMemory is returned when the table is at its configured
	// maximum fabric count.
	ErrNoMemory = errors.New("fabric: no memory for additional fabric")

	// ErrInternal is returned when CommitPendingFabricData's pre-flight
	// check finds pending flags and shadow state that are mutually
	// inconsistent.
	ErrInternal = errors.New("fabric: inconsistent pending state")
)
