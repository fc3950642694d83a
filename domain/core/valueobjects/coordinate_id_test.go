package valueobjects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "bms-backend/pkg/errors"
)

func TestNewCoordinateID_Deterministic(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	content := []byte(`{"a":1}`)

	a := NewCoordinateID(content, ts, 0)
	b := NewCoordinateID(content, ts, 0)
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), CoordinateIDLength)
}

func TestNewCoordinateID_VariesWithInputs(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	base := NewCoordinateID([]byte(`{"a":1}`), ts, 0)

	otherContent := NewCoordinateID([]byte(`{"a":2}`), ts, 0)
	otherTime := NewCoordinateID([]byte(`{"a":1}`), ts.Add(time.Second), 0)
	otherNonce := NewCoordinateID([]byte(`{"a":1}`), ts, 1)

	assert.NotEqual(t, base, otherContent)
	assert.NotEqual(t, base, otherTime)
	assert.NotEqual(t, base, otherNonce)
}

func TestParseCoordinateID(t *testing.T) {
	ts := time.Now().UTC()
	id := NewCoordinateID([]byte(`{}`), ts, 0)

	parsed, err := ParseCoordinateID(id.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equals(id))

	_, err = ParseCoordinateID("short")
	assert.Error(t, err)

	_, err = ParseCoordinateID("01010101010101010101010101") // 0 and 1 are not base32 alphabet
	assert.Error(t, err)
}

func TestGenerateCoordinateID_RetriesOnCollision(t *testing.T) {
	ts := time.Now().UTC()
	content := []byte(`{"k":"v"}`)
	first := NewCoordinateID(content, ts, 0)

	calls := 0
	exists := func(_ context.Context, id CoordinateID) (bool, error) {
		calls++
		return id.Equals(first), nil
	}

	id, err := GenerateCoordinateID(context.Background(), content, ts, 8, exists)
	require.NoError(t, err)
	assert.False(t, id.Equals(first))
	assert.Equal(t, 2, calls)
}

func TestGenerateCoordinateID_Exhausted(t *testing.T) {
	exists := func(_ context.Context, _ CoordinateID) (bool, error) {
		return true, nil
	}

	_, err := GenerateCoordinateID(context.Background(), []byte(`{}`), time.Now(), 3, exists)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeAddressExhausted))
}

func TestHash(t *testing.T) {
	a := NewHash([]byte("hello"))
	b := NewHash([]byte("hello"))
	c := NewHash([]byte("world"))

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.Len(t, a.String(), HashSize*2)

	parsed, err := ParseHash(a.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equals(a))

	empty, err := ParseHash("")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = ParseHash("nothex")
	assert.Error(t, err)
}

func TestNewHashConcat_MatchesSingleBuffer(t *testing.T) {
	joined := NewHash([]byte("abcdef"))
	concat := NewHashConcat([]byte("abc"), []byte("def"))
	assert.True(t, joined.Equals(concat))
}
