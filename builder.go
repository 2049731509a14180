package asemantic

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FragmentBuilder is the sender side of the protocol. It owns the
// current evolution parameter and produces fragments for payloads
// at the current chain position.
//
// Build never mutates the builder; Advance commits the transition
// to the next position and must be called exactly once per
// successfully transmitted fragment. If transmission fails the
// sender retries Build with unchanged state.
//
// A FragmentBuilder is owned by a single goroutine.
type FragmentBuilder struct {
	domain []byte
	mode   Mode
	bits   int
	keyed  bool
	index  uint64
	seed   []byte   // Mode A only
	evol   EvolFunc // Mode B only
}

// BuilderOption configures a FragmentBuilder.
type BuilderOption func(*FragmentBuilder)

// WithBuildBits sets the fragment length in bits. The default is
// DefaultFragmentBits.
func WithBuildBits(bits int) BuilderOption {
	return func(b *FragmentBuilder) {
		b.bits = bits
	}
}

// WithUnkeyedBuild switches Mode A fragment computation from the
// seed-keyed PRF to the unkeyed XOF. The seed then binds fragments
// through the encoding alone. Both endpoints must agree.
func WithUnkeyedBuild() BuilderOption {
	return func(b *FragmentBuilder) {
		b.keyed = false
	}
}

// NewModeA creates a sender using a secret seed K_0 shared out of
// band. The seed evolves by one KDF step per Advance and old seeds
// are wiped, giving forward secrecy.
func NewModeA(domain, seed []byte, opts ...BuilderOption) (*FragmentBuilder, error) {
	if len(seed) < MinSeedSize {
		return nil, ErrSeedRequired
	}
	b := &FragmentBuilder{
		domain: clone(domain),
		mode:   ModeA,
		bits:   DefaultFragmentBits,
		keyed:  true,
		seed:   clone(seed),
	}
	for _, fn := range opts {
		fn(b)
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	return b, nil
}

// NewModeB creates a sender whose evolution parameter is a public
// deterministic function of the logical index. Mode B fragments
// are never seed-keyed; without an auxiliary keying channel they
// carry no authentication.
func NewModeB(domain []byte, evol EvolFunc, opts ...BuilderOption) (*FragmentBuilder, error) {
	if evol == nil {
		return nil, ErrEvolRequired
	}
	b := &FragmentBuilder{
		domain: clone(domain),
		mode:   ModeB,
		bits:   DefaultFragmentBits,
		evol:   evol,
	}
	for _, fn := range opts {
		fn(b)
	}
	if err := b.check(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FragmentBuilder) check() error {
	if len(b.domain) < MinDomainSize {
		return ErrDomainSize
	}
	if b.bits < MinFragmentBits || b.bits%8 != 0 {
		return ErrFragmentBits
	}
	return nil
}

// Build produces the fragment for payload at the current chain
// position. It is deterministic: repeated calls between two
// Advance calls return identical bytes for identical payloads.
func (b *FragmentBuilder) Build(payload []byte) []byte {
	return b.BuildPrepared(PrepareContent(payload))
}

// BuildPrepared is Build for a payload already reduced to its
// content representation C.
func (b *FragmentBuilder) BuildPrepared(content []byte) []byte {
	var z, key []byte
	switch b.mode {
	case ModeA:
		z = b.seed
		if b.keyed {
			key = b.seed
		}
	case ModeB:
		z = b.evol(b.index)
	}
	frag, err := ComputeFragment(b.domain, content, z, b.bits, key)
	if err != nil {
		// bits were validated at construction
		panic(err)
	}
	return frag
}

// Advance commits the transition to the next chain position. In
// Mode A the seed becomes KDF of itself and the old seed is wiped;
// in both modes the logical index increments.
func (b *FragmentBuilder) Advance() {
	if b.mode == ModeA {
		next := kdfStep(b.seed)
		Wipe(b.seed)
		b.seed = next
	}
	b.index++
}

// Index returns the current logical chain position. It is local
// bookkeeping only and never transmitted.
func (b *FragmentBuilder) Index() uint64 {
	return b.index
}

// Mode returns the builder's evolution mode.
func (b *FragmentBuilder) Mode() Mode {
	return b.mode
}

// FragmentSize returns the length in bytes of fragments produced
// by Build.
func (b *FragmentBuilder) FragmentSize() int {
	return b.bits / 8
}

// Close wipes the builder's seed material. The builder must not be
// used afterwards.
func (b *FragmentBuilder) Close() {
	if b.seed != nil {
		Wipe(b.seed)
		b.seed = nil
	}
}

// builderSnapshot is the serialized builder state.
type builderSnapshot struct {
	Version int    `json:"version"`
	Mode    string `json:"mode"`
	Index   uint64 `json:"index"`
	Domain  string `json:"domain"`
	Bits    int    `json:"bits"`
	Keyed   bool   `json:"keyed"`
	Seed    string `json:"seed,omitempty"`
}

// Snapshot serializes the builder for crash-safe restarts. The
// returned bytes contain the current seed in Mode A and must be
// stored with the same care as the seed itself.
func (b *FragmentBuilder) Snapshot() ([]byte, error) {
	snap := builderSnapshot{
		Version: blobVersion,
		Mode:    b.mode.String(),
		Index:   b.index,
		Domain:  hex.EncodeToString(b.domain),
		Bits:    b.bits,
		Keyed:   b.keyed,
	}
	if b.mode == ModeA {
		snap.Seed = hex.EncodeToString(b.seed)
	}
	return json.Marshal(snap)
}

// Restore rebuilds a FragmentBuilder from a Snapshot. Mode B
// snapshots do not carry the evolution function; it must be passed
// again and must match the one used before the snapshot.
func Restore(snapshot []byte, evol EvolFunc) (*FragmentBuilder, error) {
	var snap builderSnapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return nil, fmt.Errorf("asemantic: decoding snapshot: %w", err)
	}
	mode, err := parseMode(snap.Mode)
	if err != nil {
		return nil, err
	}
	domain, err := hex.DecodeString(snap.Domain)
	if err != nil {
		return nil, fmt.Errorf("asemantic: decoding snapshot domain: %w", err)
	}

	var b *FragmentBuilder
	switch mode {
	case ModeA:
		seed, err := hex.DecodeString(snap.Seed)
		if err != nil {
			return nil, fmt.Errorf("asemantic: decoding snapshot seed: %w", err)
		}
		b, err = NewModeA(domain, seed, WithBuildBits(snap.Bits))
		if err != nil {
			return nil, err
		}
		Wipe(seed)
		b.keyed = snap.Keyed
	case ModeB:
		b, err = NewModeB(domain, evol, WithBuildBits(snap.Bits))
		if err != nil {
			return nil, err
		}
	}
	b.index = snap.Index
	return b, nil
}
