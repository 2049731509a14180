package asemantic

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"io"
	"runtime"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// kdfInfo domain-separates the seed evolution chain from any other
// use of the same primitives.
const kdfInfo = "ASEMANTIC_KDF_V1"

// Encode concatenates domain, content, and evolution parameter,
// each prefixed with its 4-byte big-endian length.
//
// The length prefixes make the encoding injective over all triples
// of byte strings, so no two distinct (D, C, Z) triples can
// collide by shifting bytes across field boundaries.
func Encode(domain, content, evolution []byte) []byte {
	buf := make([]byte, 0, 12+len(domain)+len(content)+len(evolution))
	buf = appendPrefixed(buf, domain)
	buf = appendPrefixed(buf, content)
	buf = appendPrefixed(buf, evolution)
	return buf
}

func appendPrefixed(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}

// KDF performs one step of the unidirectional seed evolution,
// K_{i+1} = KDF(K_i). The output has the same length as the input
// and recovering the input from the output is computationally
// infeasible.
func KDF(seed []byte) ([]byte, error) {
	return KDFContext(seed, nil)
}

// KDFContext is KDF with an optional context string. A non-empty
// context yields an output unrelated to the context-free chain,
// which lets a deployment fork auxiliary keys off a seed without
// disturbing the evolution sequence.
func KDFContext(seed, context []byte) ([]byte, error) {
	if len(seed) < MinSeedSize {
		return nil, ErrSeedSize
	}
	info := make([]byte, 0, len(kdfInfo)+len(context))
	info = append(info, kdfInfo...)
	info = append(info, context...)

	out := make([]byte, len(seed))
	r := hkdf.New(sha256.New, seed, nil, info)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(err)
	}
	return out, nil
}

// PrepareContent computes the content representation C := R(S).
//
// R is SHA-256; both endpoints must apply it to the payload before
// fragment computation. Passing an already-prepared C through the
// *Prepared variants of Build and Validate skips this step.
func PrepareContent(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return sum[:]
}

// ComputeFragment computes the ℓ-bit fragment for the given
// domain, prepared content, and evolution parameter.
//
// With a non-nil key the fragment is HMAC-SHA-256 keyed by key
// over Encode(domain, content, evolution), extended counter-mode
// to the requested length and truncated. With a nil key the
// encoding is squeezed through SHAKE256 instead.
//
// In keyed Mode A deployments the seed serves both as the key and
// as the evolution parameter inside the encoding. The double
// binding is kept deliberately: fragments stay bit-compatible with
// receivers that recompute either way, and the encoding remains
// injective in Z even if the PRF key were ever fixed.
//
// bits must be at least MinFragmentBits and a multiple of 8.
func ComputeFragment(domain, content, evolution []byte, bits int, key []byte) ([]byte, error) {
	if bits < MinFragmentBits || bits%8 != 0 {
		return nil, ErrFragmentBits
	}
	n := bits / 8
	msg := Encode(domain, content, evolution)

	if key == nil {
		out := make([]byte, n)
		xof := sha3.NewShake256()
		xof.Write(msg)
		if _, err := io.ReadFull(xof, out); err != nil {
			panic(err)
		}
		return out, nil
	}

	out := make([]byte, 0, n+sha256.Size)
	var ctr [4]byte
	for i := uint32(0); len(out) < n; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		h := hmac.New(sha256.New, key)
		h.Write(msg)
		h.Write(ctr[:])
		out = h.Sum(out)
	}
	return out[:n:n], nil
}

// ConstantTimeEqual reports whether a and b are equal. Its running
// time depends on the length of the inputs, never on their
// contents.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Wipe erases seed material in place: first an overwrite with
// unpredictable bytes, then zeros. The noinline directive and the
// KeepAlive fence stop the compiler from eliding the stores.
//
//go:noinline
func Wipe(p []byte) {
	_, _ = io.ReadFull(rand.Reader, p)
	for i := range p {
		p[i] = 0
	}
	runtime.KeepAlive(p)
}

// GenerateSeed returns a fresh random K_0 of MinSeedSize bytes for
// out-of-band provisioning.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, MinSeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// GenerateDomainTag returns a fresh random domain separation tag
// of MinDomainSize bytes for out-of-band provisioning.
func GenerateDomainTag() ([]byte, error) {
	tag := make([]byte, MinDomainSize)
	if _, err := rand.Read(tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// kdfStep advances a seed already validated at construction time.
func kdfStep(seed []byte) []byte {
	next, err := KDF(seed)
	if err != nil {
		panic(err)
	}
	return next
}

// clone returns a private copy of b, or nil for nil.
func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
