package core

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
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

// Short returns the first 12 hex characters, for logs and reports.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ComputeTableHash fingerprints a numeric table. Column names, row keys and the exact
// bit pattern of every cell contribute, so two tables hash equal only when identical.
func ComputeTableHash(columns []string, keys []string, cells [][]float64) Hash {
	var data strings.Builder
	data.WriteString(strings.Join(columns, "\x1f"))
	data.WriteByte('\x1e')
	for i, row := range cells {
		if i < len(keys) {
			data.WriteString(keys[i])
		}
		data.WriteByte('\x1d')
		for _, v := range row {
			data.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
			data.WriteByte(',')
		}
		data.WriteByte('\x1e')
	}
	return NewHash([]byte(data.String()))
}
