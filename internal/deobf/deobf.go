// Package deobf detects and reverses simple byte-stream obfuscation.
// Detection is a heuristic score, not proof: callers must treat the
// reported types as advisory. Unrecognized obfuscation degrades to a
// diagnostic marker, never an error.
package deobf

import (
	"math"
	"math/bits"
)

// Obfuscation type markers carried in Result.Types.
const (
	ObfXOR                = "xor"
	ObfRotation           = "rotation"
	ObfUnknownHighEntropy = "unknown-high-entropy"
)

const (
	// DefaultWindowSize is sized so a window of uniformly random bytes
	// actually measures close to 8 bits/byte; small windows underestimate
	// entropy because of histogram collisions.
	DefaultWindowSize = 4096

	DefaultThreshold = 7.85
	DefaultMaxKeyLen = 8

	// minEntropyDrop is the whole-stream entropy reduction required to
	// accept a repeating-key XOR candidate.
	minEntropyDrop = 0.25

	// minPrintableGain accepts a candidate whose output turns mostly
	// printable; bijective byte transforms (rotation, 1-byte XOR) leave
	// the entropy histogram untouched, so entropy alone cannot score them.
	minPrintableRatio = 0.85
	minPrintableGain  = 0.30

	// minStrideDominance is the share of a key stride the most frequent
	// ciphertext byte must hold before frequency analysis trusts it as a
	// key byte. Near-uniform strides peak around 1/256.
	minStrideDominance = 0.2
)

// Options bound the scan. Zero values select the defaults; nothing is
// read from ambient configuration.
type Options struct {
	WindowSize int
	Threshold  float64
	MaxKeyLen  int
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MaxKeyLen <= 0 {
		o.MaxKeyLen = DefaultMaxKeyLen
	}
	return o
}

// Result reports what the scan found. Payload is the inverse-transformed
// data when a transform was recognized, the unchanged input otherwise.
type Result struct {
	Types              []string
	OriginalEntropy    float64
	TransformedEntropy float64
	Payload            []byte
}

// Entropy returns the Shannon entropy of data in bits per byte.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	entropy := 0.0
	n := float64(len(data))
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// MaxWindowEntropy slides a half-overlapping window across data and
// returns the highest entropy observed. Window size 0 selects the
// default; data shorter than one window is measured whole.
func MaxWindowEntropy(data []byte, window int) float64 {
	if window <= 0 {
		window = DefaultWindowSize
	}
	if len(data) <= window {
		return Entropy(data)
	}

	max := 0.0
	step := window / 2
	if step == 0 {
		step = 1
	}
	for off := 0; off+window <= len(data); off += step {
		if e := Entropy(data[off : off+window]); e > max {
			max = e
		}
	}
	return max
}

// Scan measures data and attempts key recovery for the simple transforms
// it recognizes. It never fails: unrecognized high-entropy input is
// reported as a diagnostic marker with the payload unchanged, and
// unremarkable input yields an empty marker list.
func Scan(data []byte, opts Options) Result {
	opts = opts.withDefaults()

	res := Result{
		Types:           []string{},
		OriginalEntropy: Entropy(data),
		Payload:         data,
	}
	res.TransformedEntropy = res.OriginalEntropy
	if len(data) == 0 {
		return res
	}

	if kind, payload, entropy, ok := recoverTransform(data, opts); ok {
		res.Types = append(res.Types, kind)
		res.Payload = payload
		res.TransformedEntropy = entropy
		return res
	}

	if MaxWindowEntropy(data, opts.WindowSize) >= opts.Threshold {
		res.Types = append(res.Types, ObfUnknownHighEntropy)
	}
	return res
}

// recoverTransform tries every modeled inverse transform and keeps the
// best-scoring candidate. A repeating-key XOR wins on entropy drop; the
// bijective transforms win on the output turning printable.
func recoverTransform(data []byte, opts Options) (kind string, payload []byte, entropy float64, ok bool) {
	origEntropy := Entropy(data)
	origPrintable := printableRatio(data)

	bestEntropy := origEntropy
	bestPrintable := origPrintable

	consider := func(k string, candidate []byte) {
		e := Entropy(candidate)
		p := printableRatio(candidate)

		entropyWin := origEntropy-e >= minEntropyDrop && e < bestEntropy
		printableWin := p >= minPrintableRatio && p-origPrintable >= minPrintableGain && p > bestPrintable

		if entropyWin || printableWin {
			kind, payload, entropy, ok = k, candidate, e, true
			bestEntropy, bestPrintable = e, p
		}
	}

	for keyLen := 1; keyLen <= opts.MaxKeyLen && keyLen <= len(data); keyLen++ {
		key, ok := recoverXORKey(data, keyLen)
		if !ok || allZero(key) {
			continue
		}
		consider(ObfXOR, xorApply(data, key))
	}

	for r := 1; r < 8; r++ {
		consider(ObfRotation, rotateApply(data, r))
	}
	return
}

// recoverXORKey estimates a repeating key of the given length by frequency
// analysis: within each key stride the most frequent ciphertext byte is
// assumed to encrypt the most common plaintext byte, 0x00. When no byte
// dominates its stride the winner is a tie-break artifact rather than a
// key byte, and the estimate is rejected.
func recoverXORKey(data []byte, keyLen int) ([]byte, bool) {
	key := make([]byte, keyLen)
	for i := 0; i < keyLen; i++ {
		var freq [256]int
		stride := 0
		for j := i; j < len(data); j += keyLen {
			freq[data[j]]++
			stride++
		}
		best, bestCount := 0, -1
		for b, c := range freq {
			if c > bestCount {
				best, bestCount = b, c
			}
		}
		if stride == 0 || float64(bestCount) < float64(stride)*minStrideDominance {
			return nil, false
		}
		key[i] = byte(best) // best ^ 0x00
	}
	return key, true
}

func xorApply(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// rotateApply undoes a left bit-rotation of r by rotating right.
func rotateApply(data []byte, r int) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = bits.RotateLeft8(b, -r)
	}
	return out
}

func printableRatio(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	n := 0
	for _, b := range data {
		if (b >= 0x20 && b <= 0x7E) || b == '\n' || b == '\r' || b == '\t' || b == 0 {
			n++
		}
	}
	return float64(n) / float64(len(data))
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
