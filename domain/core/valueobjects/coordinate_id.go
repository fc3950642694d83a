package valueobjects

import (
	"context"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	pkgerrors "bms-backend/pkg/errors"
)

const (
	// CoordinateIDLength is the fixed length of an encoded coordinate:
	// 16 bytes of digest in unpadded base32.
	CoordinateIDLength = 26

	// coordinateAddressBytes is how much of the digest becomes the address
	coordinateAddressBytes = 16

	// DefaultCoordinateRetries bounds collision retries during generation
	DefaultCoordinateRetries = 8
)

var coordinateEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CoordinateID is the content-derived 128-bit address of one state lineage.
// It is stable for the lifetime of the lineage and derived from the initial
// content rather than assigned.
type CoordinateID struct {
	value string
}

// NewCoordinateID derives an address from canonical content bytes and a
// creation timestamp. A non-zero nonce mixes in extra entropy on collision
// retries; nonce 0 is the first attempt and contributes nothing, so the
// derivation is reproducible from (content, timestamp) alone.
func NewCoordinateID(canonicalBytes []byte, createdAt time.Time, nonce uint64) CoordinateID {
	h := sha3.New256()
	h.Write(canonicalBytes)
	h.Write([]byte("|"))
	h.Write([]byte(createdAt.UTC().Format(time.RFC3339)))
	if nonce > 0 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], nonce)
		h.Write([]byte("|"))
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return CoordinateID{value: coordinateEncoding.EncodeToString(sum[:coordinateAddressBytes])}
}

// ParseCoordinateID validates an externally supplied coordinate string
func ParseCoordinateID(s string) (CoordinateID, error) {
	if len(s) != CoordinateIDLength {
		return CoordinateID{}, pkgerrors.NewValidationError(fmt.Sprintf("coordinate must be %d characters, got %d", CoordinateIDLength, len(s)))
	}
	upper := strings.ToUpper(s)
	if _, err := coordinateEncoding.DecodeString(upper); err != nil {
		return CoordinateID{}, pkgerrors.NewValidationError("coordinate is not valid base32").WithCause(err)
	}
	return CoordinateID{value: upper}, nil
}

// String returns the encoded form
func (c CoordinateID) String() string {
	return c.value
}

// IsEmpty reports whether the ID is the zero value
func (c CoordinateID) IsEmpty() bool {
	return c.value == ""
}

// Equals compares two coordinate IDs
func (c CoordinateID) Equals(other CoordinateID) bool {
	return c.value == other.value
}

// MarshalText implements encoding.TextMarshaler
func (c CoordinateID) MarshalText() ([]byte, error) {
	return []byte(c.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *CoordinateID) UnmarshalText(data []byte) error {
	parsed, err := ParseCoordinateID(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CoordinateExistsFunc answers whether an address is already taken
type CoordinateExistsFunc func(ctx context.Context, id CoordinateID) (bool, error)

// GenerateCoordinateID derives a fresh, unoccupied address for the given
// content. Collisions (astronomically unlikely at 128 bits, but the storage
// layer can race) are resolved by re-deriving with an incrementing nonce, up
// to maxRetries attempts.
func GenerateCoordinateID(ctx context.Context, canonicalBytes []byte, createdAt time.Time, maxRetries int, exists CoordinateExistsFunc) (CoordinateID, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultCoordinateRetries
	}
	for nonce := uint64(0); nonce < uint64(maxRetries); nonce++ {
		id := NewCoordinateID(canonicalBytes, createdAt, nonce)
		taken, err := exists(ctx, id)
		if err != nil {
			return CoordinateID{}, err
		}
		if !taken {
			return id, nil
		}
	}
	return CoordinateID{}, pkgerrors.NewAddressExhaustedError(maxRetries)
}
