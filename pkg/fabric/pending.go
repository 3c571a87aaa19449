package fabric

// pendingKind distinguishes the shape of the in-flight operation.
// A single enum rather than independent adding/updating booleans, so
// "at most one of add/update" is structurally true instead of an
// invariant to police.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingAdding
	pendingUpdating
)

// pendingState is the Fabric Table's in-memory-only transactional
// shadow. At most one fabric may be pending at any time.
type pendingState struct {
	kind  pendingKind
	index FabricIndex

	// shadow holds the pending identity for Add (before it is promoted
	// into the live slot at Commit) and for Update (the replacement
	// identity, visible to lookups ahead of Commit).
	shadow *FabricInfo

	trustedRootPending bool
	// rootIndex is the fabric index the pending root certificate was
	// staged under (AddNewPendingTrustedRootCert stages it at the index
	// AddNewPendingFabric is about to allocate, so the certificate store
	// sees one continuous pending record across both calls). It also
	// lets AllocatePendingOperationalKey target an op key at that index
	// before AddNewPendingFabric runs, since AddNewPendingFabric's own
	// precondition requires the op key to already exist.
	rootIndex FabricIndex

	// nocPublicKey is the public key bound into the NOC currently being
	// installed, harvested from ValidateChain's result. It is the value
	// AddNewPendingFabric checks an injected op key against, and the
	// value the key store is asked to match when activating a borrowed
	// pending key.
	nocPublicKey [RootPublicKeySize]byte

	// opKeyStaged records that a borrowed op key was generated in the
	// key store for this pending fabric and is awaiting activation.
	opKeyStaged bool
	// opKeyActivated records that the staged key's public key was
	// confirmed (by the key store) to match nocPublicKey. Only an
	// activated key may be committed.
	opKeyActivated   bool
	ignoreCollisions bool

	// lastKnownGoodTimePending holds a not-before time harvested from
	// chain validation, staged until Commit.
	lastKnownGoodTimePending Timestamp
	hasLastKnownGoodTime     bool
}

func newPendingState() *pendingState {
	return &pendingState{kind: pendingNone}
}

func (p *pendingState) isIdle() bool {
	return p.kind == pendingNone && !p.trustedRootPending && !p.opKeyStaged
}

// hasFabricPending reports whether an Add or Update is in flight (as
// opposed to only a trusted root).
func (p *pendingState) hasFabricPending() bool {
	return p.kind != pendingNone
}

func (p *pendingState) reset() {
	*p = pendingState{kind: pendingNone}
}

// Timestamp is a Matter epoch-seconds timestamp, as produced by
// credentials.TimeToMatterEpoch. Defined here (rather than imported)
// because the Fabric Table's LastKnownGoodTime interaction is limited
// to harvesting and committing this single scalar; the full subsystem
// lives elsewhere.
type Timestamp uint32

// LastKnownGoodTime is the external collaborator the Fabric Table
// harvests candidate not-before times into during chain validation, and
// commits/reverts alongside its own pending state.
type LastKnownGoodTime interface {
	// UpdatePendingLastKnownGoodChipEpochTime offers a candidate time;
	// the collaborator decides whether it advances its pending value.
	UpdatePendingLastKnownGoodChipEpochTime(candidate Timestamp) error
	CommitPendingLastKnownGoodChipEpochTime() error
	RevertPendingLastKnownGoodChipEpochTime()
}

// NopLastKnownGoodTime is a no-op LastKnownGoodTime for hosts that do
// not wire the subsystem; the Table functions with it absent.
type NopLastKnownGoodTime struct{}

func (NopLastKnownGoodTime) UpdatePendingLastKnownGoodChipEpochTime(Timestamp) error { return nil }
func (NopLastKnownGoodTime) CommitPendingLastKnownGoodChipEpochTime() error          { return nil }
func (NopLastKnownGoodTime) RevertPendingLastKnownGoodChipEpochTime()                {}

var _ LastKnownGoodTime = NopLastKnownGoodTime{}
