package asemantic

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"testing"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

// TestEncodeInjective checks that the length prefixes keep triples
// with shifted field boundaries distinct.
func TestEncodeInjective(t *testing.T) {
	pairs := [][2][3][]byte{
		{
			{[]byte("dom"), []byte("AB"), []byte("C")},
			{[]byte("dom"), []byte("A"), []byte("BC")},
		},
		{
			{[]byte("domA"), []byte("B"), []byte("C")},
			{[]byte("dom"), []byte("AB"), []byte("C")},
		},
		{
			{[]byte("dom"), nil, []byte("AB")},
			{[]byte("dom"), []byte("A"), []byte("B")},
		},
	}
	for i, p := range pairs {
		a := Encode(p[0][0], p[0][1], p[0][2])
		b := Encode(p[1][0], p[1][1], p[1][2])
		if bytes.Equal(a, b) {
			t.Errorf("#%d: distinct triples encoded identically", i)
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	got := Encode([]byte{0xAA}, nil, []byte{0xBB, 0xCC})
	want := []byte{
		0, 0, 0, 1, 0xAA,
		0, 0, 0, 0,
		0, 0, 0, 2, 0xBB, 0xCC,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
}

func TestKDF(t *testing.T) {
	seed := randBytes(t, 32)

	a, err := KDF(seed)
	if err != nil {
		t.Fatal(err)
	}
	b, err := KDF(seed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("KDF is not deterministic")
	}
	if bytes.Equal(a, seed) {
		t.Fatal("KDF returned its input")
	}
	if len(a) != len(seed) {
		t.Fatalf("expected %d bytes, got %d", len(seed), len(a))
	}
}

func TestKDFLengthPreserving(t *testing.T) {
	for _, n := range []int{32, 48, 64} {
		seed := randBytes(t, n)
		out, err := KDF(seed)
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != n {
			t.Fatalf("seed length %d: got output length %d", n, len(out))
		}
	}
}

func TestKDFContextSeparation(t *testing.T) {
	seed := randBytes(t, 32)

	plain, err := KDF(seed)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := KDFContext(seed, []byte("aux"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(plain, ctx) {
		t.Fatal("context did not separate the derivation")
	}
}

func TestKDFShortSeed(t *testing.T) {
	if _, err := KDF(make([]byte, 16)); err != ErrSeedSize {
		t.Fatalf("expected ErrSeedSize, got %v", err)
	}
}

func TestComputeFragment(t *testing.T) {
	domain := randBytes(t, 16)
	content := PrepareContent([]byte("payload"))
	seed := randBytes(t, 32)

	for _, tc := range []struct {
		name string
		key  []byte
	}{
		{"keyed", seed},
		{"unkeyed", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, bits := range []int{256, 384, 512, 1024} {
				a, err := ComputeFragment(domain, content, seed, bits, tc.key)
				if err != nil {
					t.Fatal(err)
				}
				if len(a) != bits/8 {
					t.Fatalf("bits=%d: expected %d bytes, got %d", bits, bits/8, len(a))
				}
				b, err := ComputeFragment(domain, content, seed, bits, tc.key)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(a, b) {
					t.Fatalf("bits=%d: not deterministic", bits)
				}
			}
		})
	}
}

func TestComputeFragmentKeyedUnkeyedDiffer(t *testing.T) {
	domain := randBytes(t, 16)
	content := PrepareContent([]byte("payload"))
	seed := randBytes(t, 32)

	keyed, err := ComputeFragment(domain, content, seed, 256, seed)
	if err != nil {
		t.Fatal(err)
	}
	unkeyed, err := ComputeFragment(domain, content, seed, 256, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(keyed, unkeyed) {
		t.Fatal("keyed and unkeyed fragments match")
	}
}

func TestComputeFragmentBadBits(t *testing.T) {
	domain := randBytes(t, 16)
	for _, bits := range []int{0, 128, 255, 257, 300} {
		if _, err := ComputeFragment(domain, nil, nil, bits, nil); err != ErrFragmentBits {
			t.Errorf("bits=%d: expected ErrFragmentBits, got %v", bits, err)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := randBytes(t, 32)
	if !ConstantTimeEqual(a, append([]byte(nil), a...)) {
		t.Fatal("equal slices compared unequal")
	}
	b := append([]byte(nil), a...)
	b[31] ^= 1
	if ConstantTimeEqual(a, b) {
		t.Fatal("unequal slices compared equal")
	}
	if ConstantTimeEqual(a, a[:16]) {
		t.Fatal("different lengths compared equal")
	}
}

func TestPrepareContent(t *testing.T) {
	payload := []byte("ALARM_LEVEL_3")
	want := sha256.Sum256(payload)
	if !bytes.Equal(PrepareContent(payload), want[:]) {
		t.Fatal("content representation is not SHA-256")
	}
}

func TestWipe(t *testing.T) {
	buf := randBytes(t, 64)
	Wipe(buf)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
}

func TestGenerateProvisioningMaterial(t *testing.T) {
	seed, err := GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	if len(seed) < MinSeedSize {
		t.Fatalf("seed too short: %d", len(seed))
	}
	tag, err := GenerateDomainTag()
	if err != nil {
		t.Fatal(err)
	}
	if len(tag) < MinDomainSize {
		t.Fatalf("domain tag too short: %d", len(tag))
	}
	seed2, err := GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(seed, seed2) {
		t.Fatal("two generated seeds match")
	}
}
