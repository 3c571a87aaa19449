package fabric

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
	"github.com/project-chip/connectedhomeip-sub012/pkg/crypto"
)

// Table errors (legacy CRUD surface).
//
// These remain for the compatibility methods (Add, Remove, Get, ...)
// that predate the transactional commit/revert API and are kept so
// existing callers built against the simple CRUD view keep working.
var (
	// ErrTableFull is returned when the fabric table is full.
	ErrTableFull = errors.New("fabric: table full")
	// ErrFabricNotFound is returned when a fabric is not found.
	ErrFabricNotFound = errors.New("fabric: not found")
	// ErrFabricConflict is returned when adding a fabric that conflicts with existing.
	ErrFabricConflict = errors.New("fabric: fabric already exists with same root key and fabric ID")
	// ErrLabelConflict is returned when a label is already in use by another fabric.
	ErrLabelConflict = errors.New("fabric: label already in use")
	// ErrFabricIndexInUse is returned when a fabric index is already in use.
	ErrFabricIndexInUse = errors.New("fabric: fabric index already in use")
)

// TableConfig configures the fabric table.
type TableConfig struct {
	// MaxFabrics is the maximum number of fabrics supported (SupportedFabrics attribute).
	// Valid range: 5-254. Default: 5.
	MaxFabrics uint8

	// Storage persists FabricMetadata, FabricIndexInfo, and
	// FabricCommitMarker records. If nil, an in-memory store is used.
	Storage PersistentStorage

	// OpKeyStore manages per-fabric operational private keys. If nil,
	// an in-memory reference keystore is used.
	OpKeyStore OperationalKeystore

	// OpCertStore manages per-fabric certificate chains. If nil, an
	// in-memory reference store is used.
	OpCertStore OperationalCertificateStore

	// LastKnownGood tracks the last-known-good CHIP epoch time across
	// the whole device. If nil, a no-op implementation is used and time
	// validation is effectively skipped.
	LastKnownGood LastKnownGoodTime

	// LoggerFactory creates the logger used for non-fatal persistence
	// failures (commit marker writes, index info writes, last-known-good
	// time commits). If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		MaxFabrics: DefaultSupportedFabrics,
	}
}

// Table manages the fabric table: FabricInfo storage, index allocation,
// certificate/key lifecycle, and the two-phase pending/commit/revert
// state machine used to install or replace a fabric atomically.
//
// Thread Safety: All methods are safe for concurrent use.
type Table struct {
	mu sync.Mutex

	fabrics map[FabricIndex]*FabricInfo
	config  TableConfig

	index       *IndexAllocator
	storage     PersistentStorage
	keystore    OperationalKeystore
	certstore   OperationalCertificateStore
	lastKnown   LastKnownGoodTime
	delegates   delegateList
	pending     *pendingState
	log         logging.LeveledLogger
	initialized bool

	// recoveredFabricIndex is the index Init tore down because it found
	// a stale CommitMarker, or FabricIndexInvalid if none.
	recoveredFabricIndex FabricIndex
}

// NewTable creates a new fabric table with the given configuration.
// It does not touch persistent storage; call Init to load any
// previously persisted fabrics.
func NewTable(config TableConfig) *Table {
	// Clamp max fabrics to valid range
	if config.MaxFabrics < MinSupportedFabrics {
		config.MaxFabrics = MinSupportedFabrics
	}
	if config.MaxFabrics > MaxSupportedFabrics {
		config.MaxFabrics = MaxSupportedFabrics
	}

	storage := config.Storage
	if storage == nil {
		storage = NewMemoryKVStore()
	}
	keystore := config.OpKeyStore
	if keystore == nil {
		keystore = NewMemoryKeystore()
	}
	certstore := config.OpCertStore
	if certstore == nil {
		certstore = NewMemoryCertStore()
	}
	lastKnown := config.LastKnownGood
	if lastKnown == nil {
		lastKnown = NopLastKnownGoodTime{}
	}

	t := &Table{
		fabrics:   make(map[FabricIndex]*FabricInfo),
		config:    config,
		index:     NewIndexAllocator(FabricIndexMin, FabricIndexMax),
		storage:   storage,
		keystore:  keystore,
		certstore: certstore,
		lastKnown: lastKnown,
		pending:   newPendingState(),
	}
	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("fabric-table")
	}
	return t
}

// AddDelegate registers a delegate for lifecycle notifications.
func (t *Table) AddDelegate(d Delegate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delegates.add(d)
}

// RemoveDelegate deregisters a delegate.
func (t *Table) RemoveDelegate(d Delegate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delegates.remove(d)
}

// Init loads any fabrics previously persisted to storage, reconstructs
// the index allocator, and resolves an interrupted commit left behind
// by a CommitMarker. It must be called once before any other method
// that depends on persisted state (idempotent CRUD-only use without
// Init is tolerated, but pending/commit operations require it).
func (t *Table) Init() error {
	recoveredIndex, notify, err := func() (FabricIndex, bool, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.initialized {
			return FabricIndexInvalid, false, nil
		}

		raw, err := t.storage.Get(fabricIndexInfoKey)
		if err != nil {
			if errors.Is(err, ErrStorageNotFound) {
				t.initialized = true
				return FabricIndexInvalid, false, nil
			}
			return FabricIndexInvalid, false, err
		}
		indexInfo, err := DecodeIndexInfo(raw)
		if err != nil {
			return FabricIndexInvalid, false, fmt.Errorf("fabric: decode index info: %w", err)
		}

		for _, idx := range indexInfo.InUse {
			info, err := t.reconstructFabricLocked(idx)
			if err != nil {
				// A slot that cannot be reconstructed (missing metadata,
				// unreadable certificates) is skipped rather than failing
				// the whole load; the remaining fabrics stay usable.
				if t.log != nil {
					t.log.Warnf("fabric: skipping unreconstructable fabric at index %d: %v", idx, err)
				}
				continue
			}
			t.fabrics[idx] = info
			t.index.markUsed(idx)
		}
		if indexInfo.NextAvailable != FabricIndexInvalid {
			t.index.forceNext(indexInfo.NextAvailable)
		} else {
			t.index.forceNext(FabricIndexInvalid)
		}

		recovered := FabricIndexInvalid
		notify := false
		if marker, err := GetCommitMarker(t.storage); err == nil {
			t.recoverFromCommitMarker(marker)
			recovered = marker.FabricIndex
			notify = true
		} else if !errors.Is(err, ErrStorageNotFound) {
			return FabricIndexInvalid, false, err
		}

		t.initialized = true
		t.recoveredFabricIndex = recovered
		return recovered, notify, nil
	}()

	// Delegates are rarely registered this early, but a fabric torn down
	// during recovery is a removal like any other: notify without holding
	// the lock, same as every other delegate call site.
	if notify {
		t.delegates.willRemove(t, recoveredIndex)
		t.delegates.onRemoved(t, recoveredIndex)
	}
	return err
}

// RecoveredFabricIndexAtBoot reports the fabric index that Init tore
// down because it found a CommitMarker left behind by an interrupted
// commit, or (FabricIndexInvalid, false) if the last Init found no such
// marker.
func (t *Table) RecoveredFabricIndexAtBoot() (FabricIndex, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recoveredFabricIndex, t.recoveredFabricIndex != FabricIndexInvalid
}

// recoverFromCommitMarker resolves a CommitMarker left behind by a
// process that crashed mid-commit. A commit only writes the marker
// before the irreversible step (certificate/key activation), so on
// restart the safest recovery is to roll the affected fabric back.
func (t *Table) recoverFromCommitMarker(marker CommitMarker) {
	delete(t.fabrics, marker.FabricIndex)
	t.index.markFree(marker.FabricIndex)
	_ = t.certstore.RemoveOpCertsForFabric(marker.FabricIndex)
	_ = t.keystore.RemoveOpKeypairForFabric(marker.FabricIndex)
	_ = t.storage.Delete(fabricMetadataKey(marker.FabricIndex))
	if err := t.persistIndexInfoLocked(); err != nil && t.log != nil {
		t.log.Warnf("fabric: failed to persist index info after marker recovery: %v", err)
	}
	if err := ClearCommitMarker(t.storage); err != nil && t.log != nil {
		t.log.Warnf("fabric: failed to clear stale commit marker: %v", err)
	}
}

// PeekNextFabricIndex reports the index the next AddNewPendingFabric
// would assign, or FabricIndexInvalid if the table is full.
func (t *Table) PeekNextFabricIndex() FabricIndex {
	idx, err := t.index.Allocate()
	if err != nil {
		return FabricIndexInvalid
	}
	return idx
}

// SetFabricIndexForNextAddition overrides the next-available candidate.
// Intended for deterministic tests and crash-recovery tooling, not for
// ordinary commissioning flows.
func (t *Table) SetFabricIndexForNextAddition(index FabricIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index.forceNext(index)
}

// AddNewPendingTrustedRootCert stages rcac as the pending root
// certificate, ahead of AddNewPendingFabric. It stages the certificate
// under the index AddNewPendingFabric is about to allocate, so the two
// calls share one continuous pending record in the certificate store.
func (t *Table) AddNewPendingTrustedRootCert(rcac []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending.hasFabricPending() {
		return ErrIncorrectState
	}
	if len(t.fabrics) >= int(t.config.MaxFabrics) {
		return ErrNoMemory
	}

	idx, err := t.index.Allocate()
	if err != nil {
		return err
	}

	if err := t.certstore.AddNewTrustedRootCertForFabric(idx, rcac); err != nil {
		return err
	}
	t.pending.trustedRootPending = true
	t.pending.rootIndex = idx
	return nil
}

// AddNewPendingFabricOptions carries the identity material for
// AddNewPendingFabric.
type AddNewPendingFabricOptions struct {
	NOC       []byte
	ICAC      []byte
	VendorID  VendorID
	IPK       [IPKSize]byte
	Advertise bool

	// OpKeyOverride injects an already-owned operational key pair
	// instead of activating one staged in the key store
	// (AllocatePendingOperationalKey). Its public key must match the
	// NOC's bound public key; the FabricInfo then owns the key pair
	// directly rather than borrowing it from the key store.
	OpKeyOverride *crypto.P256KeyPair
}

// AddNewPendingFabric validates the certificate chain against the
// pending (or already-committed) root, allocates the next fabric
// index, and stages everything as pending. Nothing is visible to
// Find*/ForEach/List until CommitPendingFabricData succeeds.
//
// An operational key must already be available by the time this is
// called: either injected via OpKeyOverride, staged in the key store by
// a prior AllocatePendingOperationalKey call, or already committed for
// the index being allocated. Whichever form applies, its public key is
// checked against the NOC's bound public key before the fabric is
// accepted.
func (t *Table) AddNewPendingFabric(opts AddNewPendingFabricOptions) (FabricIndex, error) {
	// Delegate notification must happen without
	// holding t.mu: a delegate's OnUpdated callback is allowed to
	// register/deregister delegates (possibly itself), and those calls
	// take the same lock. The locked section below only mutates state and
	// reports whether a notification is owed.
	idx, notify, err := func() (FabricIndex, bool, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.pending.hasFabricPending() {
			return FabricIndexInvalid, false, ErrIncorrectState
		}

		if len(t.fabrics) >= int(t.config.MaxFabrics) {
			return FabricIndexInvalid, false, ErrNoMemory
		}

		rcac, err := t.pendingTrustedRoot()
		if err != nil {
			return FabricIndexInvalid, false, err
		}

		idx, err := t.index.Allocate()
		if err != nil {
			return FabricIndexInvalid, false, err
		}
		if idx != t.pending.rootIndex {
			// Another Commit consumed the peeked index between the two
			// calls; the caller must restage the root.
			return FabricIndexInvalid, false, ErrIncorrectState
		}

		result, err := ValidateChain(rcac, opts.ICAC, opts.NOC, FabricIDInvalid, AcceptAllTimes)
		if err != nil {
			return FabricIndexInvalid, false, err
		}

		if !t.pending.ignoreCollisions && t.conflictsLocked(result.RootPublicKey, result.FabricID) {
			return FabricIndexInvalid, false, ErrFabricExists
		}

		// Step 4: an op key must already be available, either injected,
		// staged in the key store awaiting activation, or already
		// committed for this index. Whichever it is, its public key must
		// match the NOC's.
		opKey, opKeyStaged, opKeyActivated, err := t.resolveOpKeyLocked(idx, opts.OpKeyOverride, result.NOCPublicKey)
		if err != nil {
			return FabricIndexInvalid, false, err
		}

		if err := t.certstore.AddNewOpCertsForFabric(idx, opts.NOC, opts.ICAC); err != nil {
			return FabricIndexInvalid, false, err
		}

		shadow := &FabricInfo{
			FabricIndex:        idx,
			FabricID:           result.FabricID,
			NodeID:             result.NodeID,
			VendorID:           opts.VendorID,
			AdvertiseIdentity:  opts.Advertise,
			RootCert:           cloneBytes(rcac),
			NOC:                cloneBytes(opts.NOC),
			ICAC:               cloneBytes(opts.ICAC),
			RootPublicKey:      result.RootPublicKey,
			CompressedFabricID: result.CompressedFabricID,
			IPK:                opts.IPK,
			OpKey:              opKey,
		}

		if err := t.lastKnown.UpdatePendingLastKnownGoodChipEpochTime(result.LatestNotBefore); err != nil {
			// The op certs were already staged; drop them but keep the
			// root so the caller can retry the Add without restaging it.
			t.certstore.RevertPendingOpCertsExceptRoot()
			return FabricIndexInvalid, false, fmt.Errorf("fabric: last known good time: %w", err)
		}

		t.pending.kind = pendingAdding
		t.pending.index = idx
		t.pending.shadow = shadow
		t.pending.nocPublicKey = result.NOCPublicKey
		t.pending.opKeyStaged = opKeyStaged
		t.pending.opKeyActivated = opKeyActivated
		t.pending.hasLastKnownGoodTime = true
		t.pending.lastKnownGoodTimePending = result.LatestNotBefore

		return idx, true, nil
	}()

	if notify {
		t.delegates.onUpdated(t, idx)
	}
	return idx, err
}

// UpdatePendingFabric validates a replacement NOC/ICAC against the
// existing fabric's own root (the fabric id must match the one already
// committed at index), and stages it as a pending update. The
// previously committed fabric remains visible and operational until
// Commit.
func (t *Table) UpdatePendingFabric(index FabricIndex, noc, icac []byte) error {
	notify, err := func() (bool, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.pending.hasFabricPending() || t.pending.trustedRootPending {
			return false, ErrIncorrectState
		}

		existing, ok := t.fabrics[index]
		if !ok {
			return false, ErrInvalidFabricIndex
		}

		// An op key must already be available for this index. This
		// implementation does not support rotating the operational key
		// as part of an update, so the only admissible source is the
		// key already committed from the fabric's original Add.
		if !t.keystore.HasOpKeypairForFabric(index) {
			return false, ErrKeyNotFound
		}

		result, err := ValidateChain(existing.RootCert, icac, noc, existing.FabricID, AcceptAllTimes)
		if err != nil {
			return false, err
		}

		// The unique chain match (same root public key + fabric id)
		// must be this fabric itself. A match against a different index
		// means the replacement NOC actually identifies a different,
		// already-registered fabric.
		if !t.pending.ignoreCollisions {
			for idx, other := range t.fabrics {
				if idx == index {
					continue
				}
				if other.MatchesRootPublicKey(result.RootPublicKey) && other.FabricID == result.FabricID {
					return false, ErrInvalidFabricIndex
				}
			}
		}

		if err := t.certstore.UpdateOpCertsForFabric(index, noc, icac); err != nil {
			return false, err
		}

		if err := t.lastKnown.UpdatePendingLastKnownGoodChipEpochTime(result.LatestNotBefore); err != nil {
			t.certstore.RevertPendingOpCertsExceptRoot()
			return false, fmt.Errorf("fabric: last known good time: %w", err)
		}

		shadow := existing.Clone()
		shadow.NOC = cloneBytes(noc)
		shadow.ICAC = cloneBytes(icac)
		shadow.NodeID = result.NodeID

		t.pending.kind = pendingUpdating
		t.pending.index = index
		t.pending.shadow = shadow
		t.pending.hasLastKnownGoodTime = true
		t.pending.lastKnownGoodTimePending = result.LatestNotBefore

		return true, nil
	}()

	if notify {
		t.delegates.onUpdated(t, index)
	}
	return err
}

// UpdateNOCLabel sets the label on the fabric at index, without
// requiring a full UpdatePendingFabric cycle.
func (t *Table) UpdateNOCLabel(index FabricIndex, label string) error {
	return t.UpdateLabel(index, label)
}

// AllocatePendingOperationalKey drives the configured keystore to
// generate a new operational key, writing a CSR into csrBuffer (which
// must be at least MinCsrBufferSize bytes). The caller obtains this CSR
// (and has it signed into a NOC) before calling AddNewPendingFabric, so
// this targets the index reserved by the most recent
// AddNewPendingTrustedRootCert; it may also be called while a fabric is
// already pending, for a caller that wants to restage the key without
// restarting the whole Add.
func (t *Table) AllocatePendingOperationalKey(csrBuffer []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.pendingKeyIndexLocked()
	if err != nil {
		return 0, err
	}
	n, err := t.keystore.NewOpKeypairForFabric(idx, csrBuffer)
	if err != nil {
		return 0, err
	}
	t.pending.opKeyStaged = true
	t.pending.opKeyActivated = false
	return n, nil
}

// pendingKeyIndexLocked resolves which fabric index an operational key
// allocation targets: the fabric already in flight (Add or Update), or,
// ahead of AddNewPendingFabric itself, the index reserved by
// AddNewPendingTrustedRootCert.
func (t *Table) pendingKeyIndexLocked() (FabricIndex, error) {
	if t.pending.hasFabricPending() {
		return t.pending.index, nil
	}
	if t.pending.trustedRootPending {
		return t.pending.rootIndex, nil
	}
	return FabricIndexInvalid, ErrIncorrectState
}

// resolveOpKeyLocked resolves the operational key for a pending Add:
// if an op key was injected, verify its public key matches the NOC's
// (else ErrInvalidPublicKey); otherwise activate the key store's
// pending key and let the key store perform the same check; otherwise
// fall back to a key already committed for this index. Returns
// ErrKeyNotFound if none of the three applies.
func (t *Table) resolveOpKeyLocked(idx FabricIndex, override *crypto.P256KeyPair, nocPublicKey [RootPublicKeySize]byte) (OpKeyBinding, bool, bool, error) {
	if override != nil {
		if !bytes.Equal(override.P256PublicKey(), nocPublicKey[:]) {
			return OpKeyBinding{}, false, false, ErrInvalidPublicKey
		}
		return OwnedOpKey(override), false, false, nil
	}
	if t.keystore.HasPendingOpKeypair() {
		if err := t.keystore.ActivateOpKeypairForFabric(idx, nocPublicKey); err != nil {
			return OpKeyBinding{}, false, false, err
		}
		return BorrowedOpKey(idx), true, true, nil
	}
	if t.keystore.HasOpKeypairForFabric(idx) {
		return BorrowedOpKey(idx), false, false, nil
	}
	return OpKeyBinding{}, false, false, ErrKeyNotFound
}

// CommitPendingFabricData promotes the staged pending fabric (from
// AddNewPendingFabric or UpdatePendingFabric) into the live table,
// committing the certificate store, keystore, and last-known-good time
// alongside it. A CommitMarker is written before the irreversible
// keystore/certstore commit so Init can recover from a crash between
// steps.
func (t *Table) CommitPendingFabricData() error {
	idx, notify, err := func() (FabricIndex, bool, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		// Pre-flight consistency: op-key flags or a shadow dangling
		// without an Add/Update in flight means the pending state
		// machine got out of sync with itself; that is unrecoverable
		// here, so discard everything rather than commit from an
		// inconsistent shadow.
		if !t.pending.hasFabricPending() && (t.pending.opKeyStaged || t.pending.shadow != nil) {
			t.revertLocked()
			return FabricIndexInvalid, false, ErrInternal
		}

		if !t.pending.hasFabricPending() {
			// Only AddNewPendingTrustedRootCert has run (or nothing at
			// all): a root alone is not committable, so clear the stage
			// and report the misuse.
			t.revertLocked()
			return FabricIndexInvalid, false, ErrIncorrectState
		}
		if t.pending.shadow == nil {
			t.revertLocked()
			return FabricIndexInvalid, false, ErrInternal
		}

		idx := t.pending.index
		isAdd := t.pending.kind == pendingAdding

		// A staged-but-never-activated key must never reach the key
		// store's commit: that would bind an operational key whose
		// public key was never confirmed to match the NOC. It is an
		// inconsistency, handled like the pre-flight ones above.
		if t.pending.opKeyStaged && !t.pending.opKeyActivated {
			t.revertLocked()
			return FabricIndexInvalid, false, fmt.Errorf("fabric: op keypair staged but never activated: %w", ErrInternal)
		}

		marker := CommitMarker{FabricIndex: idx, IsAddition: isAdd}
		if err := StoreCommitMarker(t.storage, marker); err != nil && t.log != nil {
			t.log.Warnf("fabric: failed to persist commit marker for index %d: %v", idx, err)
		}

		shadow := t.pending.shadow
		t.fabrics[idx] = shadow
		if isAdd {
			t.index.Advance(idx)
		}

		// Every commit step below runs regardless of earlier failures;
		// the first sticky error is recorded and the outcome decided
		// once at the end. Bailing out mid-sequence would leave the
		// collaborators disagreeing about which side of the transaction
		// they are on, and a sticky failure tears everything down
		// anyway.
		var sticky error

		if err := t.persistFabricLocked(shadow); err != nil {
			sticky = fmt.Errorf("fabric: persist fabric metadata: %w", err)
		}

		if t.pending.opKeyStaged {
			if err := t.keystore.CommitOpKeypairForFabric(idx); err != nil {
				t.keystore.RevertPendingKeypair()
				if sticky == nil {
					sticky = fmt.Errorf("fabric: commit op keypair: %w", err)
				}
			}
		}

		if err := t.certstore.CommitOpCertsForFabric(idx); err != nil {
			t.certstore.RevertPendingOpCerts()
			if sticky == nil {
				sticky = fmt.Errorf("fabric: commit op certs: %w", err)
			}
		}

		// Last-known-good time failures are logged but never sticky.
		if t.pending.hasLastKnownGoodTime {
			if err := t.lastKnown.CommitPendingLastKnownGoodChipEpochTime(); err != nil && t.log != nil {
				t.log.Warnf("fabric: failed to commit last known good time: %v", err)
			}
		}

		if isAdd {
			if err := t.persistIndexInfoLocked(); err != nil && sticky == nil {
				sticky = fmt.Errorf("fabric: persist index info: %w", err)
			}
		}

		if sticky != nil {
			// System state is broken past the marker write, even on an
			// Update: the fabric is deleted entirely and considered
			// absent, rather than left half-committed.
			t.tearDownAfterStickyCommitFailureLocked(idx)
			return FabricIndexInvalid, false, sticky
		}

		t.pending.reset()
		return idx, true, nil
	}()

	if notify {
		t.delegates.onCommitted(t, idx)
		// The marker outlives the notification: a crash any time before
		// this point makes the next Init treat the fabric as torn and
		// remove it, which is the safe outcome for a half-finished
		// commit.
		if cerr := ClearCommitMarker(t.storage); cerr != nil && t.log != nil {
			t.log.Warnf("fabric: failed to clear commit marker: %v", cerr)
		}
	}
	return err
}

// tearDownAfterStickyCommitFailureLocked undoes a Commit that hit a
// sticky error past the marker write: the fabric is deleted entirely
// (stores, metadata, live slot) and all remaining pending state
// reverted, so the fabric is simply absent afterwards. A partially
// committed fabric would not survive a restart in a consistent state,
// so full teardown applies even when the commit was an Update.
func (t *Table) tearDownAfterStickyCommitFailureLocked(idx FabricIndex) {
	delete(t.fabrics, idx)
	t.index.markFree(idx)
	_ = t.certstore.RemoveOpCertsForFabric(idx)
	_ = t.keystore.RemoveOpKeypairForFabric(idx)
	_ = t.storage.Delete(fabricMetadataKey(idx))
	if err := t.persistIndexInfoLocked(); err != nil && t.log != nil {
		t.log.Warnf("fabric: failed to persist index info during teardown: %v", err)
	}
	t.revertLocked()
	if err := ClearCommitMarker(t.storage); err != nil && t.log != nil {
		t.log.Warnf("fabric: failed to clear commit marker during teardown: %v", err)
	}
}

// RevertPendingFabricData discards all staged pending state (fabric,
// trusted root, operational key, last-known-good time candidate)
// without affecting the live table.
func (t *Table) RevertPendingFabricData() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revertLocked()
}

// revertLocked discards all pending state unconditionally, including a
// staged trusted root. It backs RevertPendingFabricData, the commit
// pre-flight, and the sticky-failure teardown.
func (t *Table) revertLocked() {
	if t.pending.hasFabricPending() || t.pending.trustedRootPending {
		t.certstore.RevertPendingOpCerts()
	}
	if t.pending.opKeyStaged {
		t.keystore.RevertPendingKeypair()
	}
	if t.pending.hasLastKnownGoodTime {
		t.lastKnown.RevertPendingLastKnownGoodChipEpochTime()
	}
	t.pending.reset()
}

// Delete permanently removes a fabric and all its persisted and
// keystore/certstore state. Delegates are notified before (WillRemove)
// and after (OnRemoved) the removal, without the Table's internal lock
// held, so a delegate is free to add/remove delegates, including
// itself, from inside a notification.
//
// WillRemove fires even for an index that was never initialized (so any
// stray storage/keystore/certstore state for it is still cleaned up);
// the index's own pending state is reverted first if Delete targets the
// fabric currently mid-Add/Update; and the final return value
// distinguishes "never existed" (ErrFabricNotFound) from success, after
// the cleanup has already run either way.
func (t *Table) Delete(index FabricIndex) error {
	if index == FabricIndexInvalid {
		return ErrInvalidArgument
	}

	t.delegates.willRemove(t, index)

	t.mu.Lock()
	_, wasInitialized := t.fabrics[index]
	if t.pending.index == index && (t.pending.hasFabricPending() || t.pending.trustedRootPending) {
		t.revertLocked()
	}
	if wasInitialized {
		delete(t.fabrics, index)
		t.index.markFree(index)
	}
	t.mu.Unlock()

	_ = t.certstore.RemoveOpCertsForFabric(index)
	_ = t.keystore.RemoveOpKeypairForFabric(index)
	if err := t.storage.Delete(fabricMetadataKey(index)); err != nil && t.log != nil {
		t.log.Warnf("fabric: failed to delete persisted metadata for index %d: %v", index, err)
	}

	t.mu.Lock()
	if err := t.persistIndexInfoLocked(); err != nil && t.log != nil {
		t.log.Warnf("fabric: failed to persist index info after delete: %v", err)
	}
	t.mu.Unlock()

	t.delegates.onRemoved(t, index)

	if !wasInitialized {
		return ErrFabricNotFound
	}
	return nil
}

// Forget removes a fabric's in-memory and persisted bookkeeping without
// notifying delegates, for callers that have already handled teardown
// themselves (e.g. recovering from a corrupted entry at boot).
func (t *Table) Forget(index FabricIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.fabrics, index)
	t.index.markFree(index)
	_ = t.certstore.RemoveOpCertsForFabric(index)
	_ = t.keystore.RemoveOpKeypairForFabric(index)
	_ = t.storage.Delete(fabricMetadataKey(index))
	_ = t.persistIndexInfoLocked()
}

// DeleteAllFabrics removes every committed fabric (factory reset),
// notifying delegates for each, one fabric at a time via Delete.
func (t *Table) DeleteAllFabrics() error {
	t.mu.Lock()
	indices := make([]FabricIndex, 0, len(t.fabrics))
	for idx := range t.fabrics {
		indices = append(indices, idx)
	}
	t.mu.Unlock()

	for _, idx := range indices {
		if err := t.Delete(idx); err != nil && !errors.Is(err, ErrFabricNotFound) {
			return err
		}
	}
	return nil
}

// SignWithOpKeypair signs message with the operational key bound to
// index, whether owned directly by the FabricInfo or held in the
// configured keystore.
func (t *Table) SignWithOpKeypair(index FabricIndex, message []byte) ([]byte, error) {
	t.mu.Lock()
	info, ok := t.fabrics[index]
	t.mu.Unlock()

	if !ok {
		return nil, ErrInvalidFabricIndex
	}
	if info.OpKey.IsOwned() {
		return crypto.P256Sign(info.OpKey.owned, message)
	}
	return t.keystore.SignWithOpKeypair(index, message)
}

// AllocateEphemeralKeypairForCASE requests an ephemeral P-256 keypair
// from the configured keystore, for use during CASE session setup.
func (t *Table) AllocateEphemeralKeypairForCASE() (*crypto.P256KeyPair, error) {
	return t.keystore.AllocateEphemeralKeypairForCASE()
}

// ReleaseEphemeralKeypair returns an ephemeral keypair obtained from
// AllocateEphemeralKeypairForCASE.
func (t *Table) ReleaseEphemeralKeypair(kp *crypto.P256KeyPair) {
	t.keystore.ReleaseEphemeralKeypair(kp)
}

// shadowForLocked returns the pending-update shadow for index, if one is
// staged. Lookups prefer the pending-update shadow when it matches, so
// an in-flight UpdatePendingFabric is visible to its owner (and to
// chain-validation logic) ahead of Commit. Only updates shadow this
// way - a pending Add has no live slot to shadow until Commit promotes
// it.
func (t *Table) shadowForLocked(index FabricIndex) *FabricInfo {
	if t.pending.kind == pendingUpdating && t.pending.index == index {
		return t.pending.shadow
	}
	return nil
}

// FindFabricWithIndex returns the fabric at index, or nil if none. If an
// update is pending for index, the pending shadow is returned instead of
// the still-committed live value.
func (t *Table) FindFabricWithIndex(index FabricIndex) *FabricInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if shadow := t.shadowForLocked(index); shadow != nil {
		return shadow.Clone()
	}
	if info, ok := t.fabrics[index]; ok {
		return info.Clone()
	}
	return nil
}

// FindFabric returns the fabric matching both root public key and
// fabric ID, or nil if none (the full "fabric reference" lookup).
func (t *Table) FindFabric(rootPubKey [RootPublicKeySize]byte, fabricID FabricID) *FabricInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if shadow := t.pending.shadow; t.pending.kind == pendingUpdating && shadow != nil &&
		shadow.MatchesRootPublicKey(rootPubKey) && shadow.FabricID == fabricID {
		return shadow.Clone()
	}
	for idx, info := range t.fabrics {
		if t.pending.kind == pendingUpdating && t.pending.index == idx {
			continue
		}
		if info.MatchesRootPublicKey(rootPubKey) && info.FabricID == fabricID {
			return info.Clone()
		}
	}
	return nil
}

// FindIdentity returns the fabric whose root public key and node id
// match, or nil if none.
func (t *Table) FindIdentity(rootPubKey [RootPublicKeySize]byte, nodeID NodeID) *FabricInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if shadow := t.pending.shadow; t.pending.kind == pendingUpdating && shadow != nil &&
		shadow.MatchesRootPublicKey(rootPubKey) && shadow.NodeID == nodeID {
		return shadow.Clone()
	}
	for idx, info := range t.fabrics {
		if t.pending.kind == pendingUpdating && t.pending.index == idx {
			continue
		}
		if info.MatchesRootPublicKey(rootPubKey) && info.NodeID == nodeID {
			return info.Clone()
		}
	}
	return nil
}

// FindFabricWithCompressedId returns the fabric with the given
// compressed fabric ID, or nil if none.
func (t *Table) FindFabricWithCompressedId(cfid [CompressedFabricIDSize]byte) *FabricInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if shadow := t.pending.shadow; t.pending.kind == pendingUpdating && shadow != nil &&
		shadow.MatchesCompressedFabricID(cfid) {
		return shadow.Clone()
	}
	for idx, info := range t.fabrics {
		if t.pending.kind == pendingUpdating && t.pending.index == idx {
			continue
		}
		if info.MatchesCompressedFabricID(cfid) {
			return info.Clone()
		}
	}
	return nil
}

func (t *Table) conflictsLocked(rootPubKey [RootPublicKeySize]byte, fabricID FabricID) bool {
	for _, info := range t.fabrics {
		if info.MatchesRootPublicKey(rootPubKey) && info.FabricID == fabricID {
			return true
		}
	}
	return false
}

// pendingTrustedRoot returns the root certificate staged by a prior
// AddNewPendingTrustedRootCert call. AddNewPendingFabric always
// requires one to be pending first.
func (t *Table) pendingTrustedRoot() ([]byte, error) {
	if !t.pending.trustedRootPending {
		return nil, ErrIncorrectState
	}
	return t.certstore.GetCertificate(t.pending.rootIndex, CertElementRCAC)
}

func (t *Table) persistFabricLocked(info *FabricInfo) error {
	data, err := encodeFabricMetadata(info)
	if err != nil {
		return err
	}
	return t.storage.Set(fabricMetadataKey(info.FabricIndex), data)
}

// reconstructFabricLocked rebuilds a FabricInfo at index from the small
// persisted FabricMetadata record (vendor id, label) plus its
// certificate chain in the certificate store; fabric id, node id, root
// public key, and compressed fabric id are all re-derived from the
// chain rather than persisted redundantly.
func (t *Table) reconstructFabricLocked(idx FabricIndex) (*FabricInfo, error) {
	data, err := t.storage.Get(fabricMetadataKey(idx))
	if err != nil {
		return nil, err
	}
	rec, err := decodeFabricMetadataRecord(data)
	if err != nil {
		return nil, err
	}

	rcac, err := t.certstore.GetCertificate(idx, CertElementRCAC)
	if err != nil {
		return nil, err
	}
	noc, err := t.certstore.GetCertificate(idx, CertElementNOC)
	if err != nil {
		return nil, err
	}
	var icac []byte
	if t.certstore.HasCertificateForFabric(idx, CertElementICAC) {
		icac, err = t.certstore.GetCertificate(idx, CertElementICAC)
		if err != nil {
			return nil, err
		}
	}

	result, err := ValidateChain(rcac, icac, noc, FabricIDInvalid, AcceptAllTimes)
	if err != nil {
		return nil, err
	}

	return &FabricInfo{
		FabricIndex:        idx,
		FabricID:           result.FabricID,
		NodeID:             result.NodeID,
		VendorID:           rec.VendorID,
		Label:              rec.Label,
		RootCert:           cloneBytes(rcac),
		NOC:                cloneBytes(noc),
		ICAC:               cloneBytes(icac),
		RootPublicKey:      result.RootPublicKey,
		CompressedFabricID: result.CompressedFabricID,
		OpKey:              BorrowedOpKey(idx),
		AdvertiseIdentity:  rec.Advertise,
	}, nil
}

func (t *Table) persistIndexInfoLocked() error {
	inUse := make([]FabricIndex, 0, len(t.fabrics))
	for idx := range t.fabrics {
		inUse = append(inUse, idx)
	}
	info := IndexInfo{NextAvailable: t.index.Peek(), InUse: inUse}
	data, err := info.EncodeTLV()
	if err != nil {
		return err
	}
	return t.storage.Set(fabricIndexInfoKey, data)
}

// --- Legacy CRUD compatibility surface ---
//
// The methods below predate the transactional pending/commit API and
// are kept so hosts built against the simple CRUD view of the table
// (construct, Add, ForEach, Remove) keep working unchanged.

// Add adds a fabric directly to the live table, bypassing the pending
// workflow. Intended for hosts that already have a fully validated
// FabricInfo (e.g. loaded from their own storage format) and don't need
// two-phase commit.
//
// Returns ErrTableFull if the table is at capacity.
// Returns ErrFabricIndexInUse if the fabric index is already in use.
// Returns ErrFabricConflict if a fabric with the same root key and fabric ID exists.
func (t *Table) Add(info *FabricInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.fabrics) >= int(t.config.MaxFabrics) {
		return ErrTableFull
	}
	if _, exists := t.fabrics[info.FabricIndex]; exists {
		return ErrFabricIndexInUse
	}
	if t.conflictsLocked(info.RootPublicKey, info.FabricID) {
		return ErrFabricConflict
	}

	clone := info.Clone()
	t.fabrics[info.FabricIndex] = clone
	t.index.markUsed(info.FabricIndex)
	return nil
}

// Remove removes a fabric from the table by index.
//
// Returns ErrFabricNotFound if the fabric doesn't exist.
func (t *Table) Remove(index FabricIndex) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.fabrics[index]; !exists {
		return ErrFabricNotFound
	}
	delete(t.fabrics, index)
	t.index.markFree(index)
	return nil
}

// Get returns a fabric by index.
//
// Returns (nil, false) if the fabric doesn't exist.
// The returned FabricInfo is a clone - modifications won't affect the table.
func (t *Table) Get(index FabricIndex) (*FabricInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.fabrics[index]
	if !exists {
		return nil, false
	}
	return info.Clone(), true
}

// Update atomically updates a fabric in the table.
//
// The update function receives a pointer to the fabric info which can be
// modified in place. Changes are persisted when the function returns without error.
//
// Returns ErrFabricNotFound if the fabric doesn't exist.
func (t *Table) Update(index FabricIndex, fn func(*FabricInfo) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.fabrics[index]
	if !exists {
		return ErrFabricNotFound
	}
	return fn(info)
}

// FindByRootPublicKey returns the fabric with the given root public key.
func (t *Table) FindByRootPublicKey(rootPubKey [RootPublicKeySize]byte) (*FabricInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, info := range t.fabrics {
		if info.MatchesRootPublicKey(rootPubKey) {
			return info.Clone(), true
		}
	}
	return nil, false
}

// FindByCompressedFabricID returns the fabric with the given compressed fabric ID.
func (t *Table) FindByCompressedFabricID(cfid [CompressedFabricIDSize]byte) (*FabricInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, info := range t.fabrics {
		if info.MatchesCompressedFabricID(cfid) {
			return info.Clone(), true
		}
	}
	return nil, false
}

// FindByFabricID returns the fabric with the given fabric ID.
//
// Note: Multiple fabrics could theoretically have the same fabric ID with
// different root CAs (though this is unusual). This returns the first match.
func (t *Table) FindByFabricID(fabricID FabricID) (*FabricInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, info := range t.fabrics {
		if info.FabricID == fabricID {
			return info.Clone(), true
		}
	}
	return nil, false
}

// FindByRootAndFabricID returns the fabric matching both root public key and fabric ID.
func (t *Table) FindByRootAndFabricID(rootPubKey [RootPublicKeySize]byte, fabricID FabricID) (*FabricInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, info := range t.fabrics {
		if info.MatchesRootPublicKey(rootPubKey) && info.FabricID == fabricID {
			return info.Clone(), true
		}
	}
	return nil, false
}

// List returns all fabrics in the table.
//
// The returned slice contains clones - modifications won't affect the table.
func (t *Table) List() []*FabricInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]*FabricInfo, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		result = append(result, info.Clone())
	}
	return result
}

// Count returns the number of fabrics in the table.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.fabrics)
}

// SupportedFabrics returns the maximum number of supported fabrics.
func (t *Table) SupportedFabrics() uint8 {
	return t.config.MaxFabrics
}

// CommissionedFabrics returns the current number of commissioned fabrics.
func (t *Table) CommissionedFabrics() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint8(len(t.fabrics))
}

// AllocateFabricIndex returns the next available fabric index without
// consuming it.
//
// Returns ErrTableFull if no index is available.
func (t *Table) AllocateFabricIndex() (FabricIndex, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.fabrics) >= int(t.config.MaxFabrics) {
		return FabricIndexInvalid, ErrTableFull
	}
	idx, err := t.index.Allocate()
	if err != nil {
		return FabricIndexInvalid, ErrTableFull
	}
	return idx, nil
}

// IsFabricIndexInUse returns true if the fabric index is currently in use.
func (t *Table) IsFabricIndexInUse(index FabricIndex) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.fabrics[index]
	return exists
}

// UpdateLabel updates the label for a fabric.
//
// Returns ErrFabricNotFound if the fabric doesn't exist.
// Returns ErrLabelConflict if the label is already used by another fabric.
// Returns ErrInvalidLabel if the label exceeds max length.
func (t *Table) UpdateLabel(index FabricIndex, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.fabrics[index]
	if !exists {
		return ErrFabricNotFound
	}
	if label != "" {
		for idx, other := range t.fabrics {
			if idx != index && other.Label == label {
				return ErrLabelConflict
			}
		}
	}
	return info.SetLabel(label)
}

// IsLabelInUse returns true if the label is used by any fabric except excludeIndex.
func (t *Table) IsLabelInUse(label string, excludeIndex FabricIndex) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if label == "" {
		return false
	}
	for idx, info := range t.fabrics {
		if idx != excludeIndex && info.Label == label {
			return true
		}
	}
	return false
}

// GetNOCsList returns the NOCs attribute value (list of NOCStruct for all fabrics).
func (t *Table) GetNOCsList() []NOCStruct {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]NOCStruct, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		result = append(result, info.GetNOCStruct())
	}
	return result
}

// GetFabricsList returns the Fabrics attribute value (list of FabricDescriptorStruct).
func (t *Table) GetFabricsList() []FabricDescriptorStruct {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]FabricDescriptorStruct, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		result = append(result, info.GetFabricDescriptor())
	}
	return result
}

// GetTrustedRootCertificates returns the TrustedRootCertificates attribute value.
func (t *Table) GetTrustedRootCertificates() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([][]byte, 0, len(t.fabrics))
	for _, info := range t.fabrics {
		cert := make([]byte, len(info.RootCert))
		copy(cert, info.RootCert)
		result = append(result, cert)
	}
	return result
}

// Clear removes all fabrics from the table (factory reset), without
// touching persistent storage or notifying delegates. Prefer
// DeleteAllFabrics for a host that wants storage and delegates kept in
// sync.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fabrics = make(map[FabricIndex]*FabricInfo)
	t.index = NewIndexAllocator(FabricIndexMin, FabricIndexMax)
}

// ForEach iterates over all fabrics in the table.
//
// The callback receives a read-only view of each fabric. To modify a fabric,
// use Update() instead. If the callback returns an error, iteration stops
// and that error is returned.
func (t *Table) ForEach(fn func(*FabricInfo) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, info := range t.fabrics {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

// String returns a summary of the fabric table.
func (t *Table) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("FabricTable{Count=%d, Max=%d}", len(t.fabrics), t.config.MaxFabrics)
}
