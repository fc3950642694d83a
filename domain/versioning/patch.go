package versioning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"bms-backend/domain/core/valueobjects"
	pkgerrors "bms-backend/pkg/errors"
)

// OpKind is the patch operation verb (RFC 6902 vocabulary)
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
	OpMove    OpKind = "move"
	OpCopy    OpKind = "copy"
	OpTest    OpKind = "test"
)

// Op is one patch operation against a state document. Paths are JSON
// Pointers (RFC 6901). Value is meaningful for add/replace/test, From for
// move/copy.
type Op struct {
	Kind     OpKind
	Path     string
	From     string
	Value    valueobjects.State
	HasValue bool
}

// NewAddOp builds an add operation
func NewAddOp(path string, value valueobjects.State) Op {
	return Op{Kind: OpAdd, Path: path, Value: value, HasValue: true}
}

// NewRemoveOp builds a remove operation
func NewRemoveOp(path string) Op {
	return Op{Kind: OpRemove, Path: path}
}

// NewReplaceOp builds a replace operation
func NewReplaceOp(path string, value valueobjects.State) Op {
	return Op{Kind: OpReplace, Path: path, Value: value, HasValue: true}
}

// NewMoveOp builds a move operation
func NewMoveOp(from, path string) Op {
	return Op{Kind: OpMove, Path: path, From: from}
}

// NewCopyOp builds a copy operation
func NewCopyOp(from, path string) Op {
	return Op{Kind: OpCopy, Path: path, From: from}
}

// NewTestOp builds a test operation
func NewTestOp(path string, value valueobjects.State) Op {
	return Op{Kind: OpTest, Path: path, Value: value, HasValue: true}
}

// MarshalJSON emits the canonical wire form of the operation, so stored ops
// and hashed ops are the same bytes.
func (o Op) MarshalJSON() ([]byte, error) {
	return o.canonicalBytes()
}

// canonicalBytes serializes one op with keys in byte-sorted order
// (from, op, path, value) and canonical value bytes.
func (o Op) canonicalBytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if o.From != "" {
		buf.WriteString(`"from":`)
		writeJSONString(&buf, o.From)
		buf.WriteByte(',')
	}
	buf.WriteString(`"op":`)
	writeJSONString(&buf, string(o.Kind))
	buf.WriteString(`,"path":`)
	writeJSONString(&buf, o.Path)
	if o.HasValue {
		buf.WriteString(`,"value":`)
		vb, err := o.Value.CanonicalBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// UnmarshalJSON parses the wire form back into an Op
func (o *Op) UnmarshalJSON(data []byte) error {
	var raw struct {
		Op    string          `json:"op"`
		Path  string          `json:"path"`
		From  string          `json:"from"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return pkgerrors.NewEncodingError("invalid patch operation").WithCause(err)
	}

	kind := OpKind(raw.Op)
	switch kind {
	case OpAdd, OpRemove, OpReplace, OpMove, OpCopy, OpTest:
	default:
		return pkgerrors.NewEncodingError(fmt.Sprintf("unknown patch op %q", raw.Op))
	}

	op := Op{Kind: kind, Path: raw.Path, From: raw.From}
	if raw.Value != nil {
		v, err := valueobjects.ParseState(raw.Value)
		if err != nil {
			return err
		}
		op.Value = v
		op.HasValue = true
	}
	*o = op
	return nil
}

// OpsCanonicalBytes serializes an op list deterministically. These are the
// bytes the delta hash is computed over.
func OpsCanonicalBytes(ops []Op) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, op := range ops {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := op.canonicalBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// ParseOps decodes a JSON array of patch operations
func ParseOps(data []byte) ([]Op, error) {
	var ops []Op
	if err := json.Unmarshal(data, &ops); err != nil {
		if pkgerrors.IsAppError(err) {
			return nil, err
		}
		return nil, pkgerrors.NewEncodingError("invalid patch operation list").WithCause(err)
	}
	return ops, nil
}

// Compute derives the minimal patch turning prev into next. Only add, remove
// and replace are ever emitted; objects are diffed key-by-key, arrays over
// their common prefix with tail insertions or removals. The contract is the
// round trip: Apply(Compute(prev, next), prev) == next.
func Compute(prev, next valueobjects.State) ([]Op, error) {
	var ops []Op
	diff(prev, next, "", &ops)
	return ops, nil
}

func diff(prev, next valueobjects.State, path string, ops *[]Op) {
	if prev.Equals(next) {
		return
	}

	switch {
	case prev.Kind() == valueobjects.KindObject && next.Kind() == valueobjects.KindObject:
		diffObjects(prev, next, path, ops)
	case prev.Kind() == valueobjects.KindArray && next.Kind() == valueobjects.KindArray:
		diffArrays(prev, next, path, ops)
	default:
		*ops = append(*ops, NewReplaceOp(path, next))
	}
}

func diffObjects(prev, next valueobjects.State, path string, ops *[]Op) {
	for _, key := range prev.Keys() {
		child := path + "/" + escapePointerToken(key)
		pv, _ := prev.Member(key)
		if nv, ok := next.Member(key); ok {
			diff(pv, nv, child, ops)
		} else {
			*ops = append(*ops, NewRemoveOp(child))
		}
	}
	for _, key := range next.Keys() {
		if _, ok := prev.Member(key); !ok {
			nv, _ := next.Member(key)
			*ops = append(*ops, NewAddOp(path+"/"+escapePointerToken(key), nv))
		}
	}
}

func diffArrays(prev, next valueobjects.State, path string, ops *[]Op) {
	pe, ne := prev.Elements(), next.Elements()
	common := len(pe)
	if len(ne) < common {
		common = len(ne)
	}
	for i := 0; i < common; i++ {
		diff(pe[i], ne[i], path+"/"+strconv.Itoa(i), ops)
	}
	// Trailing elements: removals run high-to-low so earlier indices stay
	// valid during sequential apply.
	for i := len(pe) - 1; i >= common; i-- {
		*ops = append(*ops, NewRemoveOp(path+"/"+strconv.Itoa(i)))
	}
	for i := common; i < len(ne); i++ {
		*ops = append(*ops, NewAddOp(path+"/"+strconv.Itoa(i), ne[i]))
	}
}

// Apply executes the operations in order against state and returns the
// result. The input state is never mutated. All six verbs are accepted;
// any path or test mismatch yields a PatchConflict.
func Apply(ops []Op, state valueobjects.State) (valueobjects.State, error) {
	current := state
	for i, op := range ops {
		next, err := applyOne(op, current)
		if err != nil {
			return valueobjects.State{}, pkgerrors.Wrapf(err, "op %d (%s %s)", i, op.Kind, op.Path)
		}
		current = next
	}
	return current, nil
}

func applyOne(op Op, state valueobjects.State) (valueobjects.State, error) {
	switch op.Kind {
	case OpAdd:
		tokens, err := splitPointer(op.Path)
		if err != nil {
			return valueobjects.State{}, err
		}
		return setValue(state, tokens, op.Value, true)

	case OpReplace:
		tokens, err := splitPointer(op.Path)
		if err != nil {
			return valueobjects.State{}, err
		}
		return setValue(state, tokens, op.Value, false)

	case OpRemove:
		tokens, err := splitPointer(op.Path)
		if err != nil {
			return valueobjects.State{}, err
		}
		next, _, err := removeValue(state, tokens)
		return next, err

	case OpMove:
		if op.From == op.Path {
			return state, nil
		}
		if strings.HasPrefix(op.Path, op.From+"/") {
			return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("cannot move %q into its own child %q", op.From, op.Path))
		}
		fromTokens, err := splitPointer(op.From)
		if err != nil {
			return valueobjects.State{}, err
		}
		without, moved, err := removeValue(state, fromTokens)
		if err != nil {
			return valueobjects.State{}, err
		}
		toTokens, err := splitPointer(op.Path)
		if err != nil {
			return valueobjects.State{}, err
		}
		return setValue(without, toTokens, moved, true)

	case OpCopy:
		fromTokens, err := splitPointer(op.From)
		if err != nil {
			return valueobjects.State{}, err
		}
		src, err := getValue(state, fromTokens)
		if err != nil {
			return valueobjects.State{}, err
		}
		toTokens, err := splitPointer(op.Path)
		if err != nil {
			return valueobjects.State{}, err
		}
		return setValue(state, toTokens, src.Clone(), true)

	case OpTest:
		tokens, err := splitPointer(op.Path)
		if err != nil {
			return valueobjects.State{}, err
		}
		actual, err := getValue(state, tokens)
		if err != nil {
			return valueobjects.State{}, err
		}
		if !actual.Equals(op.Value) {
			return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("test failed at %q", op.Path))
		}
		return state, nil

	default:
		return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("unknown op %q", op.Kind))
	}
}

// getValue resolves a token path against state
func getValue(state valueobjects.State, tokens []string) (valueobjects.State, error) {
	current := state
	for _, tok := range tokens {
		switch current.Kind() {
		case valueobjects.KindObject:
			v, ok := current.Member(tok)
			if !ok {
				return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("member %q does not exist", tok))
			}
			current = v
		case valueobjects.KindArray:
			idx, err := parseArrayIndex(tok, current.Len(), false)
			if err != nil {
				return valueobjects.State{}, err
			}
			current = current.Elements()[idx]
		default:
			return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("path traverses non-container at %q", tok))
		}
	}
	return current, nil
}

// setValue writes v at the token path, rebuilding containers along the way.
// insert distinguishes add (may create the leaf, inserts into arrays) from
// replace (leaf must already exist).
func setValue(state valueobjects.State, tokens []string, v valueobjects.State, insert bool) (valueobjects.State, error) {
	if len(tokens) == 0 {
		// Whole-document target.
		return v, nil
	}
	tok, rest := tokens[0], tokens[1:]

	switch state.Kind() {
	case valueobjects.KindObject:
		members := state.Members()
		if len(rest) == 0 {
			if !insert {
				if _, ok := members[tok]; !ok {
					return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("cannot replace missing member %q", tok))
				}
			}
			members[tok] = v
			return valueobjects.Object(members), nil
		}
		child, ok := members[tok]
		if !ok {
			return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("member %q does not exist", tok))
		}
		updated, err := setValue(child, rest, v, insert)
		if err != nil {
			return valueobjects.State{}, err
		}
		members[tok] = updated
		return valueobjects.Object(members), nil

	case valueobjects.KindArray:
		elems := state.Elements()
		if len(rest) == 0 {
			if insert {
				idx, err := parseArrayIndex(tok, len(elems), true)
				if err != nil {
					return valueobjects.State{}, err
				}
				next := make([]valueobjects.State, 0, len(elems)+1)
				next = append(next, elems[:idx]...)
				next = append(next, v)
				next = append(next, elems[idx:]...)
				return valueobjects.Array(next...), nil
			}
			idx, err := parseArrayIndex(tok, len(elems), false)
			if err != nil {
				return valueobjects.State{}, err
			}
			next := make([]valueobjects.State, len(elems))
			copy(next, elems)
			next[idx] = v
			return valueobjects.Array(next...), nil
		}
		idx, err := parseArrayIndex(tok, len(elems), false)
		if err != nil {
			return valueobjects.State{}, err
		}
		updated, err := setValue(elems[idx], rest, v, insert)
		if err != nil {
			return valueobjects.State{}, err
		}
		next := make([]valueobjects.State, len(elems))
		copy(next, elems)
		next[idx] = updated
		return valueobjects.Array(next...), nil

	default:
		return valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("path traverses non-container at %q", tok))
	}
}

// removeValue deletes the value at the token path and returns both the new
// state and the removed value.
func removeValue(state valueobjects.State, tokens []string) (valueobjects.State, valueobjects.State, error) {
	if len(tokens) == 0 {
		return valueobjects.State{}, valueobjects.State{}, pkgerrors.NewPatchConflictError("cannot remove the whole document")
	}
	tok, rest := tokens[0], tokens[1:]

	switch state.Kind() {
	case valueobjects.KindObject:
		members := state.Members()
		child, ok := members[tok]
		if !ok {
			return valueobjects.State{}, valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("member %q does not exist", tok))
		}
		if len(rest) == 0 {
			delete(members, tok)
			return valueobjects.Object(members), child, nil
		}
		updated, removed, err := removeValue(child, rest)
		if err != nil {
			return valueobjects.State{}, valueobjects.State{}, err
		}
		members[tok] = updated
		return valueobjects.Object(members), removed, nil

	case valueobjects.KindArray:
		elems := state.Elements()
		idx, err := parseArrayIndex(tok, len(elems), false)
		if err != nil {
			return valueobjects.State{}, valueobjects.State{}, err
		}
		if len(rest) == 0 {
			removed := elems[idx]
			next := make([]valueobjects.State, 0, len(elems)-1)
			next = append(next, elems[:idx]...)
			next = append(next, elems[idx+1:]...)
			return valueobjects.Array(next...), removed, nil
		}
		updated, removed, err := removeValue(elems[idx], rest)
		if err != nil {
			return valueobjects.State{}, valueobjects.State{}, err
		}
		next := make([]valueobjects.State, len(elems))
		copy(next, elems)
		next[idx] = updated
		return valueobjects.Array(next...), removed, nil

	default:
		return valueobjects.State{}, valueobjects.State{}, pkgerrors.NewPatchConflictError(fmt.Sprintf("path traverses non-container at %q", tok))
	}
}

// parseArrayIndex interprets one pointer token as an array index.
// allowAppend admits "-" and index == length (insertion points).
func parseArrayIndex(tok string, length int, allowAppend bool) (int, error) {
	if tok == "-" {
		if !allowAppend {
			return 0, pkgerrors.NewPatchConflictError(`"-" is only valid when inserting`)
		}
		return length, nil
	}
	if len(tok) > 1 && tok[0] == '0' {
		return 0, pkgerrors.NewPatchConflictError(fmt.Sprintf("invalid array index %q", tok))
	}
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 0 {
		return 0, pkgerrors.NewPatchConflictError(fmt.Sprintf("invalid array index %q", tok))
	}
	limit := length
	if allowAppend {
		limit = length + 1
	}
	if idx >= limit {
		return 0, pkgerrors.NewPatchConflictError(fmt.Sprintf("array index %d out of bounds (length %d)", idx, length))
	}
	return idx, nil
}

// splitPointer parses an RFC 6901 JSON Pointer into unescaped tokens
func splitPointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if path[0] != '/' {
		return nil, pkgerrors.NewPatchConflictError(fmt.Sprintf("invalid JSON pointer %q", path))
	}
	parts := strings.Split(path[1:], "/")
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = unescapePointerToken(p)
	}
	return tokens, nil
}

func escapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

func unescapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	return strings.ReplaceAll(tok, "~0", "~")
}
