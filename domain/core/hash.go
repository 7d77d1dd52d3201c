package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ComputeParamHash fingerprints a stage's parameter set. Parameters are
// rendered key-sorted so the hash is stable across map iteration order.
func ComputeParamHash(params map[string]interface{}) Hash {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("=%v;", params[key]))
	}
	return NewHash([]byte(data.String()))
}

// ComputeIndexHash fingerprints a bootstrap index matrix
func ComputeIndexHash(indices [][]int) Hash {
	buf := make([]byte, 0, 8*len(indices))
	var word [8]byte
	for _, row := range indices {
		for _, v := range row {
			binary.LittleEndian.PutUint64(word[:], uint64(v))
			buf = append(buf, word[:]...)
		}
	}
	return NewHash(buf)
}

// ComputeMatrixHash fingerprints a dense float64 block bit-exactly
func ComputeMatrixHash(data []float64) Hash {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return NewHash(buf)
}
