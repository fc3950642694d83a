package valueobjects

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	pkgerrors "bms-backend/pkg/errors"
)

// HashSize is the digest size in bytes (SHA3-256)
const HashSize = 32

// Hash is a hex-encoded SHA3-256 digest used for delta hashes, chain hashes
// and snapshot state hashes.
type Hash struct {
	value string
}

// EmptyHash is the absent-parent sentinel used when linking a genesis delta
var EmptyHash = Hash{}

// NewHash computes the SHA3-256 digest of data
func NewHash(data []byte) Hash {
	sum := sha3.Sum256(data)
	return Hash{value: hex.EncodeToString(sum[:])}
}

// NewHashConcat computes the digest of the given byte segments concatenated
// in order, without copying them into one buffer first.
func NewHashConcat(segments ...[]byte) Hash {
	h := sha3.New256()
	for _, seg := range segments {
		h.Write(seg)
	}
	return Hash{value: hex.EncodeToString(h.Sum(nil))}
}

// ParseHash validates and wraps an existing hex digest string
func ParseHash(s string) (Hash, error) {
	if s == "" {
		return EmptyHash, nil
	}
	if len(s) != HashSize*2 {
		return Hash{}, pkgerrors.NewValidationError(fmt.Sprintf("hash must be %d hex characters, got %d", HashSize*2, len(s)))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return Hash{}, pkgerrors.NewValidationError("hash is not valid hex").WithCause(err)
	}
	return Hash{value: s}, nil
}

// IsEmpty reports whether the hash is the absent sentinel
func (h Hash) IsEmpty() bool {
	return h.value == ""
}

// String returns the hex form; empty string for the sentinel
func (h Hash) String() string {
	return h.value
}

// Bytes returns the raw hex form as bytes, suitable for feeding into a
// parent-link digest. The sentinel contributes zero bytes.
func (h Hash) Bytes() []byte {
	return []byte(h.value)
}

// Equals compares two hashes
func (h Hash) Equals(other Hash) bool {
	return h.value == other.value
}

// MarshalText implements encoding.TextMarshaler
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := ParseHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
