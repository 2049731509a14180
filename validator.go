package asemantic

import "crypto/subtle"

// Result is the outcome of a validation attempt.
type Result uint8

const (
	// ResultReject means no index in the window reproduced the
	// fragment. Deliberately opaque: a reject carries no reason.
	ResultReject Result = iota
	// ResultAccept means the fragment was reproduced at the
	// returned index.
	ResultAccept
	// ResultError means a structural fault (wrong fragment
	// length, unusable state), never "bad fragment".
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultAccept:
		return "ACCEPT"
	case ResultReject:
		return "REJECT"
	case ResultError:
		return "ERROR"
	default:
		return "?"
	}
}

// Stats counts validator activity. The counters exist for
// operators and tests; none of them leaks through the protocol
// surface.
type Stats struct {
	Validations uint64
	Accepts     uint64
	Rejects     uint64
	Errors      uint64
	Comparisons uint64
}

// Validator recomputes candidate fragments over the receiver's
// window and compares them against received bytes under strict
// constant-time equality.
//
// Two search policies exist. The default returns at the first
// match, which is cheap but leaks the match position through
// timing. WithConstantTime always traverses the full window with
// an identical sequence of crypto calls whatever the outcome,
// recording the first match branch-free. The policy is fixed per
// validator: it is a deployment decision, not a per-call flag.
type Validator struct {
	domain    []byte
	window    int
	bits      int
	keyed     bool
	evol      EvolFunc
	constTime bool
	stats     Stats
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithWindow sets the forward search width ν. The validator
// recomputes indexes t through t+ν inclusive. The default is
// DefaultWindow.
func WithWindow(width int) ValidatorOption {
	return func(v *Validator) {
		v.window = width
	}
}

// WithValidateBits sets the expected fragment length in bits. The
// default is DefaultFragmentBits. Must match the sender.
func WithValidateBits(bits int) ValidatorOption {
	return func(v *Validator) {
		v.bits = bits
	}
}

// WithUnkeyedValidate matches senders built with WithUnkeyedBuild.
func WithUnkeyedValidate() ValidatorOption {
	return func(v *Validator) {
		v.keyed = false
	}
}

// WithEvol supplies the Mode B evolution function. Required to
// validate against Mode B receiver states.
func WithEvol(evol EvolFunc) ValidatorOption {
	return func(v *Validator) {
		v.evol = evol
	}
}

// WithConstantTime selects the side-channel hardened search: the
// full window is always traversed and the same number of fragment
// computations, chain steps, and comparisons run whether or where
// a match occurs.
func WithConstantTime() ValidatorOption {
	return func(v *Validator) {
		v.constTime = true
	}
}

// NewValidator creates a validator for the given domain tag.
func NewValidator(domain []byte, opts ...ValidatorOption) (*Validator, error) {
	v := &Validator{
		domain: clone(domain),
		window: DefaultWindow,
		bits:   DefaultFragmentBits,
		keyed:  true,
	}
	for _, fn := range opts {
		fn(v)
	}
	if len(v.domain) < MinDomainSize {
		return nil, ErrDomainSize
	}
	if v.bits < MinFragmentBits || v.bits%8 != 0 {
		return nil, ErrFragmentBits
	}
	if v.window < 0 {
		v.window = 0
	}
	return v, nil
}

// Stats returns a copy of the validator's counters.
func (v *Validator) Stats() Stats {
	return v.stats
}

// Validate checks a received fragment against the receiver state
// and payload. On success it returns (ResultAccept, j*) with j*
// the matched index in [t, t+ν]; the caller then advances the
// state past j*. A reject returns (ResultReject, 0) and carries no
// further information. ResultError covers structural faults only.
//
// Validate never mutates the receiver state.
func (v *Validator) Validate(fragment []byte, state *ReceiverState, payload []byte) (Result, uint64) {
	return v.ValidatePrepared(fragment, state, PrepareContent(payload))
}

// ValidatePrepared is Validate for a payload already reduced to
// its content representation C.
func (v *Validator) ValidatePrepared(fragment []byte, state *ReceiverState, content []byte) (Result, uint64) {
	v.stats.Validations++

	res, idx := v.search(fragment, state, content)
	switch res {
	case ResultAccept:
		v.stats.Accepts++
	case ResultReject:
		v.stats.Rejects++
	case ResultError:
		v.stats.Errors++
	}
	validationsTotal.WithLabelValues(res.String()).Inc()
	return res, idx
}

func (v *Validator) search(fragment []byte, state *ReceiverState, content []byte) (Result, uint64) {
	if len(fragment) != v.bits/8 {
		return ResultError, 0
	}

	switch state.mode {
	case ModeA:
		if state.seed == nil {
			return ResultError, 0
		}
		if v.constTime {
			return v.searchModeAConstTime(fragment, state, content)
		}
		return v.searchModeA(fragment, state, content)
	case ModeB:
		if v.evol == nil {
			return ResultError, 0
		}
		if v.constTime {
			return v.searchModeBConstTime(fragment, state, content)
		}
		return v.searchModeB(fragment, state, content)
	default:
		return ResultError, 0
	}
}

// searchModeA is the early-stop Mode A scan.
func (v *Validator) searchModeA(fragment []byte, state *ReceiverState, content []byte) (Result, uint64) {
	cur := clone(state.seed)
	defer func() { Wipe(cur) }()

	lo, hi := state.Window(v.window)
	for j := lo; j <= hi; j++ {
		v.comparison()
		if ConstantTimeEqual(v.candidate(content, cur, cur), fragment) {
			return ResultAccept, j
		}
		next := kdfStep(cur)
		Wipe(cur)
		cur = next
	}
	return ResultReject, 0
}

// searchModeAConstTime traverses the full window unconditionally.
// The match flag and index are carried through constant-time
// selects; no control flow depends on them inside the loop.
func (v *Validator) searchModeAConstTime(fragment []byte, state *ReceiverState, content []byte) (Result, uint64) {
	cur := clone(state.seed)
	defer func() { Wipe(cur) }()

	matched := 0
	offset := 0
	lo, hi := state.Window(v.window)
	for j := lo; j <= hi; j++ {
		v.comparison()
		eq := subtle.ConstantTimeCompare(v.candidate(content, cur, cur), fragment)
		take := eq & (matched ^ 1)
		offset = subtle.ConstantTimeSelect(take, int(j-lo), offset)
		matched |= take

		next := kdfStep(cur)
		Wipe(cur)
		cur = next
	}
	if matched == 1 {
		return ResultAccept, lo + uint64(offset)
	}
	return ResultReject, 0
}

// searchModeB is the early-stop Mode B scan.
func (v *Validator) searchModeB(fragment []byte, state *ReceiverState, content []byte) (Result, uint64) {
	lo, hi := state.Window(v.window)
	for j := lo; j <= hi; j++ {
		v.comparison()
		if ConstantTimeEqual(v.candidate(content, v.evol(j), nil), fragment) {
			return ResultAccept, j
		}
	}
	return ResultReject, 0
}

func (v *Validator) searchModeBConstTime(fragment []byte, state *ReceiverState, content []byte) (Result, uint64) {
	matched := 0
	offset := 0
	lo, hi := state.Window(v.window)
	for j := lo; j <= hi; j++ {
		v.comparison()
		eq := subtle.ConstantTimeCompare(v.candidate(content, v.evol(j), nil), fragment)
		take := eq & (matched ^ 1)
		offset = subtle.ConstantTimeSelect(take, int(j-lo), offset)
		matched |= take
	}
	if matched == 1 {
		return ResultAccept, lo + uint64(offset)
	}
	return ResultReject, 0
}

// candidate recomputes F̂ for one window position. In keyed
// deployments the seed keys the PRF; Mode B always passes a nil
// key.
func (v *Validator) candidate(content, z, seed []byte) []byte {
	var key []byte
	if v.keyed && seed != nil {
		key = seed
	}
	frag, err := ComputeFragment(v.domain, content, z, v.bits, key)
	if err != nil {
		// bits were validated at construction
		panic(err)
	}
	return frag
}

func (v *Validator) comparison() {
	v.stats.Comparisons++
	comparisonsTotal.Inc()
}

// ValidateAndCommit composes Validate with the anchor advance. On
// accept the state moves to j*+1 (with the seed K_{j*+1} in Mode
// A) and is persisted; if the commit fails the in-memory state is
// left exactly as before and the call degrades to a structural
// error.
func (v *Validator) ValidateAndCommit(fragment []byte, state *ReceiverState, payload []byte) (Result, uint64) {
	return v.ValidateAndCommitPrepared(fragment, state, PrepareContent(payload))
}

// ValidateAndCommitPrepared is ValidateAndCommit for a payload
// already reduced to its content representation C.
func (v *Validator) ValidateAndCommitPrepared(fragment []byte, state *ReceiverState, content []byte) (Result, uint64) {
	res, idx := v.ValidatePrepared(fragment, state, content)
	if res != ResultAccept {
		return res, idx
	}

	var newSeed []byte
	if state.mode == ModeA {
		newSeed = state.DeriveSeedAt(idx + 1)
	}
	ok, err := state.Advance(idx+1, newSeed)
	if newSeed != nil {
		Wipe(newSeed)
	}
	if err != nil || !ok {
		commitFailuresTotal.Inc()
		return ResultError, 0
	}
	return ResultAccept, idx
}
