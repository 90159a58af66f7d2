package validator

import (
	"hash/fnv"
	"math/rand"
	"strings"
)

// Permutations is the fixed number of hash permutations per signature.
// 128 keeps the standard error of the Jaccard estimate around 1/sqrt(128) ≈ 9%.
const Permutations = 128

// permutation parameters for the universal hash family g_i(x) = a_i*x + b_i.
// Seeded deterministically so signatures are stable across processes.
var (
	permA [Permutations]uint64
	permB [Permutations]uint64
)

func init() {
	rng := rand.New(rand.NewSource(0x746f7069)) // fixed seed, signatures must be reproducible
	for i := 0; i < Permutations; i++ {
		permA[i] = rng.Uint64() | 1 // odd multiplier
		permB[i] = rng.Uint64()
	}
}

// Signature is a MinHash signature over a topic's word set: a fixed-size
// approximation that supports cheap estimated-Jaccard comparisons without
// keeping the full sets around.
type Signature [Permutations]uint64

// NewSignature tokenizes text (lower-cased, whitespace-split) and computes its
// MinHash signature. An empty word set yields the max-valued signature, which
// compares as similar only to other empty signatures.
func NewSignature(text string) Signature {
	var sig Signature
	for i := range sig {
		sig[i] = ^uint64(0)
	}

	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		x := h.Sum64()
		for i := 0; i < Permutations; i++ {
			if v := permA[i]*x + permB[i]; v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Jaccard estimates the Jaccard similarity between the two underlying word
// sets as the fraction of matching signature slots.
func (s Signature) Jaccard(other Signature) float64 {
	matches := 0
	for i := 0; i < Permutations; i++ {
		if s[i] == other[i] {
			matches++
		}
	}
	return float64(matches) / float64(Permutations)
}
