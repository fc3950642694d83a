package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "bms-backend/pkg/errors"
)

func TestParseState_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  StateKind
	}{
		{"null", `null`, KindNull},
		{"bool", `true`, KindBool},
		{"integer", `42`, KindNumber},
		{"float", `3.14`, KindNumber},
		{"string", `"hello"`, KindString},
		{"array", `[1,2,3]`, KindArray},
		{"object", `{"a":1}`, KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseState([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Kind())
		})
	}
}

func TestParseState_InvalidJSON(t *testing.T) {
	_, err := ParseState([]byte(`{"a":`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsEncoding(err))

	_, err = ParseState([]byte(`{} trailing`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsEncoding(err))
}

func TestCanonicalBytes_SortsObjectKeys(t *testing.T) {
	s, err := ParseState([]byte(`{"zebra":1,"apple":2,"mango":{"b":1,"a":2}}`))
	require.NoError(t, err)

	b, err := s.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, `{"apple":2,"mango":{"a":2,"b":1},"zebra":1}`, string(b))
}

func TestCanonicalBytes_Deterministic(t *testing.T) {
	// Same structure, different textual layout and key order.
	a, err := ParseState([]byte(`{ "b" : 2,   "a": 1 }`))
	require.NoError(t, err)
	b, err := ParseState([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)

	ab, err := a.CanonicalBytes()
	require.NoError(t, err)
	bb, err := b.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
	assert.True(t, a.Equals(b))
}

func TestCanonicalBytes_NumberNormalization(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`42`, `42`},
		{`-7`, `-7`},
		{`3.14`, `3.14`},
		{`1.0`, `1`},
		{`1e3`, `1000`},
		{`0.5`, `0.5`},
	}

	for _, tt := range tests {
		s, err := ParseState([]byte(tt.input))
		require.NoError(t, err)
		b, err := s.CanonicalBytes()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b), "input %s", tt.input)
	}
}

func TestCanonicalBytes_PreservesArrayOrder(t *testing.T) {
	s, err := ParseState([]byte(`[3,1,2]`))
	require.NoError(t, err)
	b, err := s.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2]`, string(b))
}

func TestCanonicalBytes_StringEscaping(t *testing.T) {
	s := Object(map[string]State{"msg": String_("line1\nline2\t\"quoted\"")})
	b, err := s.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"line1\nline2\t\"quoted\""}`, string(b))
}

func TestCanonicalBytes_InvalidUTF8(t *testing.T) {
	s := String_(string([]byte{0xff, 0xfe}))
	_, err := s.CanonicalBytes()
	require.Error(t, err)
	assert.True(t, pkgerrors.IsEncoding(err))
}

func TestState_Equals(t *testing.T) {
	a := Object(map[string]State{
		"n":    Int(1),
		"list": Array(String_("x"), Bool(true)),
	})
	b := Object(map[string]State{
		"list": Array(String_("x"), Bool(true)),
		"n":    Int(1),
	})
	c := Object(map[string]State{
		"n":    Int(2),
		"list": Array(String_("x"), Bool(true)),
	})

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.False(t, a.Equals(Null()))
}

func TestState_Clone_Independent(t *testing.T) {
	orig := Object(map[string]State{"a": Array(Int(1))})
	clone := orig.Clone()
	assert.True(t, orig.Equals(clone))

	// Mutating the clone's members must not reach the original.
	clone.obj["b"] = Int(2)
	_, ok := orig.Member("b")
	assert.False(t, ok)
}

func TestState_JSONRoundTrip(t *testing.T) {
	s, err := ParseState([]byte(`{"a":[1,2,{"b":null}],"c":"x"}`))
	require.NoError(t, err)

	encoded, err := s.MarshalJSON()
	require.NoError(t, err)

	var back State
	require.NoError(t, back.UnmarshalJSON(encoded))
	assert.True(t, s.Equals(back))
}

func TestEmptyObject(t *testing.T) {
	s := EmptyObject()
	assert.Equal(t, KindObject, s.Kind())
	assert.Equal(t, 0, s.Len())

	b, err := s.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}
