package versioning

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bms-backend/domain/core/valueobjects"
	pkgerrors "bms-backend/pkg/errors"
)

func mustState(t *testing.T, raw string) valueobjects.State {
	t.Helper()
	s, err := valueobjects.ParseState([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestCompute_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
	}{
		{"identical", `{"a":1}`, `{"a":1}`},
		{"add member", `{"a":1}`, `{"a":1,"b":2}`},
		{"remove member", `{"a":1,"b":2}`, `{"a":1}`},
		{"replace member", `{"a":1}`, `{"a":2}`},
		{"nested object change", `{"a":{"x":1,"y":2}}`, `{"a":{"x":1,"y":3}}`},
		{"kind change", `{"a":1}`, `{"a":"one"}`},
		{"array element change", `{"a":[1,2,3]}`, `{"a":[1,9,3]}`},
		{"array grows", `{"a":[1]}`, `{"a":[1,2,3]}`},
		{"array shrinks", `{"a":[1,2,3]}`, `{"a":[1]}`},
		{"array emptied", `{"a":[1,2]}`, `{"a":[]}`},
		{"root replace", `{"a":1}`, `[1,2]`},
		{"from empty genesis", `{}`, `{"user":{"name":"ada","tags":["x","y"]}}`},
		{"deep mixed", `{"a":{"b":[{"c":1}]},"d":null}`, `{"a":{"b":[{"c":2},{"e":3}]},"f":true}`},
		{"escaped keys", `{"a/b":1,"c~d":2}`, `{"a/b":9,"c~d":2,"e":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := mustState(t, tt.prev)
			next := mustState(t, tt.next)

			ops, err := Compute(prev, next)
			require.NoError(t, err)

			got, err := Apply(ops, prev)
			require.NoError(t, err)
			assert.True(t, got.Equals(next), "round trip mismatch")
		})
	}
}

func TestCompute_EmitsOnlyBasicVerbs(t *testing.T) {
	prev := mustState(t, `{"a":[1,2,3],"b":{"c":1}}`)
	next := mustState(t, `{"a":[3],"b":{"d":2},"e":null}`)

	ops, err := Compute(prev, next)
	require.NoError(t, err)
	require.NotEmpty(t, ops)

	for _, op := range ops {
		assert.Contains(t, []OpKind{OpAdd, OpRemove, OpReplace}, op.Kind)
	}
}

func TestCompute_NoChangeYieldsNoOps(t *testing.T) {
	s := mustState(t, `{"a":{"b":[1,2]},"c":"x"}`)
	ops, err := Compute(s, s)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestCompute_Deterministic(t *testing.T) {
	prev := mustState(t, `{"z":1,"a":2,"m":3}`)
	next := mustState(t, `{"z":9,"b":4,"m":3}`)

	first, err := Compute(prev, next)
	require.NoError(t, err)
	second, err := Compute(prev, next)
	require.NoError(t, err)

	fb, err := OpsCanonicalBytes(first)
	require.NoError(t, err)
	sb, err := OpsCanonicalBytes(second)
	require.NoError(t, err)
	assert.Equal(t, fb, sb)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	prev := mustState(t, `{"a":{"b":1}}`)
	snapshot := prev.Clone()

	ops := []Op{NewReplaceOp("/a/b", valueobjects.Int(2))}
	_, err := Apply(ops, prev)
	require.NoError(t, err)

	assert.True(t, prev.Equals(snapshot))
}

func TestApply_MoveCopyTest(t *testing.T) {
	state := mustState(t, `{"a":{"b":1},"c":[1,2]}`)

	t.Run("move", func(t *testing.T) {
		got, err := Apply([]Op{NewMoveOp("/a/b", "/d")}, state)
		require.NoError(t, err)
		assert.True(t, got.Equals(mustState(t, `{"a":{},"c":[1,2],"d":1}`)))
	})

	t.Run("copy", func(t *testing.T) {
		got, err := Apply([]Op{NewCopyOp("/c", "/d")}, state)
		require.NoError(t, err)
		assert.True(t, got.Equals(mustState(t, `{"a":{"b":1},"c":[1,2],"d":[1,2]}`)))
	})

	t.Run("test passes", func(t *testing.T) {
		got, err := Apply([]Op{NewTestOp("/a/b", valueobjects.Int(1))}, state)
		require.NoError(t, err)
		assert.True(t, got.Equals(state))
	})

	t.Run("test fails", func(t *testing.T) {
		_, err := Apply([]Op{NewTestOp("/a/b", valueobjects.Int(2))}, state)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsPatchConflict(err))
	})

	t.Run("move into own child", func(t *testing.T) {
		_, err := Apply([]Op{NewMoveOp("/a", "/a/b")}, state)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsPatchConflict(err))
	})
}

func TestApply_ArrayInsertAndAppend(t *testing.T) {
	state := mustState(t, `{"a":[1,3]}`)

	got, err := Apply([]Op{NewAddOp("/a/1", valueobjects.Int(2))}, state)
	require.NoError(t, err)
	assert.True(t, got.Equals(mustState(t, `{"a":[1,2,3]}`)))

	got, err = Apply([]Op{NewAddOp("/a/-", valueobjects.Int(4))}, state)
	require.NoError(t, err)
	assert.True(t, got.Equals(mustState(t, `{"a":[1,3,4]}`)))
}

func TestApply_Conflicts(t *testing.T) {
	state := mustState(t, `{"a":{"b":1},"c":[1]}`)

	tests := []struct {
		name string
		op   Op
	}{
		{"replace missing member", NewReplaceOp("/a/x", valueobjects.Int(1))},
		{"remove missing member", NewRemoveOp("/x")},
		{"array index out of bounds", NewReplaceOp("/c/5", valueobjects.Int(1))},
		{"invalid array index", NewReplaceOp("/c/abc", valueobjects.Int(1))},
		{"leading-zero index", NewReplaceOp("/c/01", valueobjects.Int(1))},
		{"traverse scalar", NewReplaceOp("/a/b/deep", valueobjects.Int(1))},
		{"bad pointer", NewReplaceOp("no-slash", valueobjects.Int(1))},
		{"move missing source", NewMoveOp("/missing", "/d")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply([]Op{tt.op}, state)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsPatchConflict(err), "expected patch conflict, got %v", err)
		})
	}
}

func TestOp_JSONRoundTrip(t *testing.T) {
	ops := []Op{
		NewAddOp("/a", mustState(t, `{"x":[1,2]}`)),
		NewRemoveOp("/b"),
		NewReplaceOp("/c/0", valueobjects.String_("v")),
		NewMoveOp("/d", "/e"),
		NewCopyOp("/f", "/g"),
		NewTestOp("/h", valueobjects.Null()),
	}

	encoded, err := json.Marshal(ops)
	require.NoError(t, err)

	decoded, err := ParseOps(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(ops))

	for i := range ops {
		assert.Equal(t, ops[i].Kind, decoded[i].Kind)
		assert.Equal(t, ops[i].Path, decoded[i].Path)
		assert.Equal(t, ops[i].From, decoded[i].From)
		assert.Equal(t, ops[i].HasValue, decoded[i].HasValue)
		if ops[i].HasValue {
			assert.True(t, ops[i].Value.Equals(decoded[i].Value))
		}
	}
}

func TestParseOps_Invalid(t *testing.T) {
	_, err := ParseOps([]byte(`[{"op":"explode","path":"/a"}]`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsEncoding(err))

	_, err = ParseOps([]byte(`not json`))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsEncoding(err))
}

func TestOpsCanonicalBytes_Stable(t *testing.T) {
	ops := []Op{
		NewAddOp("/a", mustState(t, `{"b":1,"a":2}`)),
		NewRemoveOp("/z"),
	}

	b, err := OpsCanonicalBytes(ops)
	require.NoError(t, err)
	assert.Equal(t, `[{"op":"add","path":"/a","value":{"a":2,"b":1}},{"op":"remove","path":"/z"}]`, string(b))
}
