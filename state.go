package asemantic

import (
	"encoding/hex"
	"errors"
)

// ReceiverState owns the monotonic anchor t and, in Mode A, the
// seed K_t aligned with it. Fragments at indexes below the anchor
// are outside every window and can never be accepted again, which
// is the whole replay defense: no history of accepted fragments is
// ever kept.
//
// A ReceiverState is owned by a single goroutine. Concurrent
// validation against the same state is a deployment error;
// serialize behind one owner instead.
type ReceiverState struct {
	mode     Mode
	anchor   uint64
	seed     []byte // K_t, Mode A only
	store    Store
	rollback uint64
}

// StateOption configures a ReceiverState.
type StateOption func(*ReceiverState)

// WithStore attaches durable storage. Every successful Advance is
// persisted through it before the old seed is destroyed, and the
// constructor loads any previously persisted blob.
func WithStore(s Store) StateOption {
	return func(rs *ReceiverState) {
		rs.store = s
	}
}

// WithInitialAnchor sets the anchor used when no persisted blob
// exists. Persisted state, when present, takes precedence.
func WithInitialAnchor(t uint64) StateOption {
	return func(rs *ReceiverState) {
		rs.anchor = t
	}
}

// WithRollbackFloor seeds the generation counter from an external
// monotonic reference (a secure element, TPM counter, or similar).
// Loading durable state older than the floor fails with
// ErrRollbackDetected.
func WithRollbackFloor(counter uint64) StateOption {
	return func(rs *ReceiverState) {
		rs.rollback = counter
	}
}

// NewReceiverModeA creates a receiver holding the seed aligned
// with its initial anchor. If a store is attached and already
// holds a blob, the blob's anchor, seed, and counter replace the
// provisioned values; the provisioned seed must then correspond to
// the provisioned anchor or an earlier one.
func NewReceiverModeA(seed []byte, opts ...StateOption) (*ReceiverState, error) {
	if len(seed) < MinSeedSize {
		return nil, ErrSeedRequired
	}
	rs := &ReceiverState{
		mode: ModeA,
		seed: clone(seed),
	}
	for _, fn := range opts {
		fn(rs)
	}
	if err := rs.load(); err != nil {
		rs.Close()
		return nil, err
	}
	return rs, nil
}

// NewReceiverModeB creates a receiver tracking only the anchor.
func NewReceiverModeB(opts ...StateOption) (*ReceiverState, error) {
	rs := &ReceiverState{
		mode: ModeB,
	}
	for _, fn := range opts {
		fn(rs)
	}
	if err := rs.load(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Anchor returns the current monotonic floor t. Indexes below it
// are permanently rejected.
func (rs *ReceiverState) Anchor() uint64 {
	return rs.anchor
}

// Mode returns the receiver's evolution mode.
func (rs *ReceiverState) Mode() Mode {
	return rs.mode
}

// RollbackCounter returns the persistence generation counter. It
// increments on every committed Advance and is the reference for
// rollback detection on load.
func (rs *ReceiverState) RollbackCounter() uint64 {
	return rs.rollback
}

// Window returns the inclusive search bounds [t, t+width] for the
// validator.
func (rs *ReceiverState) Window(width int) (lo, hi uint64) {
	return rs.anchor, rs.anchor + uint64(width)
}

// DeriveSeedAt returns K_j for j >= t by applying the KDF exactly
// j-t times to the stored K_t, or nil for j below the anchor or in
// Mode B. The receiver state is not mutated and intermediate seeds
// are wiped as soon as they are stepped past: caching them would
// break forward secrecy.
func (rs *ReceiverState) DeriveSeedAt(j uint64) []byte {
	if rs.mode != ModeA || rs.seed == nil || j < rs.anchor {
		return nil
	}
	cur := clone(rs.seed)
	for k := rs.anchor; k < j; k++ {
		next := kdfStep(cur)
		Wipe(cur)
		cur = next
	}
	return cur
}

// Advance atomically replaces (t, K_t) with (newAnchor, newSeed).
//
// It returns (false, nil) without any change if newAnchor does not
// strictly exceed the current anchor, or if Mode A is not given a
// seed. On success the new state is persisted before the old seed
// is wiped; if persisting fails the in-memory state is rolled back
// and the error returned, so durable and in-memory state never
// diverge past one committed generation.
func (rs *ReceiverState) Advance(newAnchor uint64, newSeed []byte) (bool, error) {
	if newAnchor <= rs.anchor {
		return false, nil
	}
	if rs.mode == ModeA && len(newSeed) < MinSeedSize {
		return false, nil
	}

	oldAnchor, oldSeed, oldRollback := rs.anchor, rs.seed, rs.rollback
	rs.anchor = newAnchor
	if rs.mode == ModeA {
		rs.seed = clone(newSeed)
	}
	rs.rollback++

	if rs.store != nil {
		if err := rs.store.Save(rs.blob()); err != nil {
			if rs.mode == ModeA {
				Wipe(rs.seed)
			}
			rs.anchor, rs.seed, rs.rollback = oldAnchor, oldSeed, oldRollback
			return false, err
		}
	}

	if oldSeed != nil {
		Wipe(oldSeed)
	}
	return true, nil
}

// Reload re-reads durable state, applying it only if it is at
// least as new as the in-memory generation. A blob whose anchor or
// counter regressed is a security fault: the durable medium was
// rewritten to an older generation and the receiver must halt.
// Malformed or absent blobs leave the state untouched without
// error; the in-memory crypto state is authoritative.
func (rs *ReceiverState) Reload() error {
	return rs.load()
}

func (rs *ReceiverState) load() error {
	if rs.store == nil {
		return nil
	}
	blob, err := rs.store.Load()
	if err != nil {
		if errors.Is(err, ErrCorruptBlob) {
			return nil
		}
		return err
	}
	if blob == nil {
		return nil
	}
	mode, err := parseMode(blob.Mode)
	if err != nil || mode != rs.mode {
		return nil
	}
	if blob.Anchor < rs.anchor || blob.RollbackCounter < rs.rollback {
		return ErrRollbackDetected
	}

	if rs.mode == ModeA {
		seed, err := hex.DecodeString(blob.Seed)
		if err != nil || len(seed) < MinSeedSize {
			return nil
		}
		if rs.seed != nil {
			Wipe(rs.seed)
		}
		rs.seed = seed
	}
	rs.anchor = blob.Anchor
	rs.rollback = blob.RollbackCounter
	return nil
}

func (rs *ReceiverState) blob() *Blob {
	b := &Blob{
		Version:         blobVersion,
		Mode:            rs.mode.String(),
		Anchor:          rs.anchor,
		RollbackCounter: rs.rollback,
	}
	if rs.mode == ModeA {
		b.Seed = hex.EncodeToString(rs.seed)
	}
	return b
}

// Close wipes the receiver's seed material. The state must not be
// used afterwards.
func (rs *ReceiverState) Close() {
	if rs.seed != nil {
		Wipe(rs.seed)
		rs.seed = nil
	}
}
