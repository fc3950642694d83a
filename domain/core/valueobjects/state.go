package valueobjects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	pkgerrors "bms-backend/pkg/errors"
)

// StateKind identifies the variant held by a State
type StateKind uint8

const (
	KindNull StateKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the human-readable name of the kind
func (k StateKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// State is a value object representing one structured document value.
// It is a closed tagged variant over {null, bool, number, string, array,
// object}; recorded versions are immutable, so State values are treated as
// read-only once constructed.
type State struct {
	kind StateKind
	b    bool
	// num holds the canonical numeric literal (integers in plain decimal,
	// floats via strconv shortest form), fixed at construction time.
	num string
	str string
	arr []State
	obj map[string]State
}

// Null returns the null state
func Null() State {
	return State{kind: KindNull}
}

// Bool returns a boolean state
func Bool(v bool) State {
	return State{kind: KindBool, b: v}
}

// Int returns an integer number state
func Int(v int64) State {
	return State{kind: KindNumber, num: strconv.FormatInt(v, 10)}
}

// Float returns a floating-point number state
func Float(v float64) State {
	return State{kind: KindNumber, num: strconv.FormatFloat(v, 'g', -1, 64)}
}

// String_ returns a string state. The underscore avoids colliding with the
// fmt.Stringer method on State.
func String_(v string) State {
	return State{kind: KindString, str: v}
}

// Array returns an array state holding the given elements in order
func Array(elems ...State) State {
	return State{kind: KindArray, arr: elems}
}

// Object returns an object state over the given members
func Object(members map[string]State) State {
	if members == nil {
		members = map[string]State{}
	}
	return State{kind: KindObject, obj: members}
}

// EmptyObject returns the genesis state of a fresh lineage
func EmptyObject() State {
	return Object(nil)
}

// ParseState decodes a JSON document into a State.
// Numeric literals are normalized to their canonical form during decoding.
func ParseState(data []byte) (State, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return State{}, pkgerrors.NewEncodingError("invalid JSON document").WithCause(err)
	}
	// Reject trailing content after the document.
	if dec.More() {
		return State{}, pkgerrors.NewEncodingError("trailing content after JSON document")
	}
	return fromDecoded(raw)
}

func fromDecoded(raw interface{}) (State, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case json.Number:
		return normalizeNumber(string(v))
	case string:
		return String_(v), nil
	case []interface{}:
		elems := make([]State, len(v))
		for i, e := range v {
			s, err := fromDecoded(e)
			if err != nil {
				return State{}, err
			}
			elems[i] = s
		}
		return Array(elems...), nil
	case map[string]interface{}:
		members := make(map[string]State, len(v))
		for k, e := range v {
			s, err := fromDecoded(e)
			if err != nil {
				return State{}, err
			}
			members[k] = s
		}
		return Object(members), nil
	default:
		return State{}, pkgerrors.NewEncodingError(fmt.Sprintf("unrepresentable value of type %T", raw))
	}
}

// normalizeNumber fixes one textual form per numeric value: integers that fit
// int64 render in plain decimal, everything else through strconv's shortest
// float form.
func normalizeNumber(lit string) (State, error) {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return State{}, pkgerrors.NewEncodingError(fmt.Sprintf("unrepresentable number literal %q", lit))
	}
	return Float(f), nil
}

// Kind returns the variant tag
func (s State) Kind() StateKind {
	return s.kind
}

// IsNull reports whether the state is null
func (s State) IsNull() bool {
	return s.kind == KindNull
}

// BoolValue returns the boolean payload; valid only for KindBool
func (s State) BoolValue() bool {
	return s.b
}

// NumberLiteral returns the canonical numeric literal; valid only for KindNumber
func (s State) NumberLiteral() string {
	return s.num
}

// StringValue returns the string payload; valid only for KindString
func (s State) StringValue() string {
	return s.str
}

// Elements returns the array payload; valid only for KindArray.
// The returned slice must not be mutated.
func (s State) Elements() []State {
	return s.arr
}

// Len returns the number of elements or members for arrays and objects
func (s State) Len() int {
	switch s.kind {
	case KindArray:
		return len(s.arr)
	case KindObject:
		return len(s.obj)
	default:
		return 0
	}
}

// Member returns the object member for key; valid only for KindObject
func (s State) Member(key string) (State, bool) {
	v, ok := s.obj[key]
	return v, ok
}

// Members returns a copy of the object members; valid only for KindObject
func (s State) Members() map[string]State {
	members := make(map[string]State, len(s.obj))
	for k, v := range s.obj {
		members[k] = v
	}
	return members
}

// Keys returns the object member keys sorted byte-wise
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.obj))
	for k := range s.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equals performs a deep structural comparison
func (s State) Equals(other State) bool {
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindNull:
		return true
	case KindBool:
		return s.b == other.b
	case KindNumber:
		return s.num == other.num
	case KindString:
		return s.str == other.str
	case KindArray:
		if len(s.arr) != len(other.arr) {
			return false
		}
		for i := range s.arr {
			if !s.arr[i].Equals(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(s.obj) != len(other.obj) {
			return false
		}
		for k, v := range s.obj {
			ov, ok := other.obj[k]
			if !ok || !v.Equals(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy that is safe to mutate independently
func (s State) Clone() State {
	switch s.kind {
	case KindArray:
		elems := make([]State, len(s.arr))
		for i := range s.arr {
			elems[i] = s.arr[i].Clone()
		}
		return State{kind: KindArray, arr: elems}
	case KindObject:
		members := make(map[string]State, len(s.obj))
		for k, v := range s.obj {
			members[k] = v.Clone()
		}
		return State{kind: KindObject, obj: members}
	default:
		return s
	}
}

// CanonicalBytes serializes the state deterministically: object keys sorted
// byte-wise at every level, array order preserved, fixed numeric form, no
// whitespace. Structurally equal states always yield identical bytes.
func (s State) CanonicalBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.writeCanonical(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalString is CanonicalBytes as a string
func (s State) CanonicalString() (string, error) {
	b, err := s.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalHash is the digest of CanonicalBytes. Structurally equal states
// always yield the same hash.
func (s State) CanonicalHash() (Hash, error) {
	b, err := s.CanonicalBytes()
	if err != nil {
		return Hash{}, err
	}
	return NewHash(b), nil
}

func (s State) writeCanonical(buf *bytes.Buffer) error {
	switch s.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if s.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(s.num)
	case KindString:
		return writeCanonicalString(buf, s.str)
	case KindArray:
		buf.WriteByte('[')
		for i := range s.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := s.arr[i].writeCanonical(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range s.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			v := s.obj[k]
			if err := v.writeCanonical(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return pkgerrors.NewEncodingError(fmt.Sprintf("unrepresentable state kind %v", s.kind))
	}
	return nil
}

const hexDigits = "0123456789abcdef"

// writeCanonicalString emits a JSON string with one fixed escaping scheme:
// quote, backslash and control characters only, no HTML-safety escapes.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return pkgerrors.NewEncodingError("string is not valid UTF-8")
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[byte(r)>>4])
				buf.WriteByte(hexDigits[byte(r)&0xF])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

// MarshalJSON implements json.Marshaler using the canonical form
func (s State) MarshalJSON() ([]byte, error) {
	return s.CanonicalBytes()
}

// UnmarshalJSON implements json.Unmarshaler
func (s *State) UnmarshalJSON(data []byte) error {
	parsed, err := ParseState(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
