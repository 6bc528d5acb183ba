// Copyright (c) qualia authors.
// SPDX-License-Identifier: MPL-2.0

package qualia

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// IdentityField is the reserved property name that holds an object's
// identity once it has been read back from the store. It is never present
// in the properties blob itself; the store injects it as a column on read.
const IdentityField = "object_id"

// propKind tags the two variants a PropValue can hold.
type propKind int

const (
	propNumber propKind = iota
	propString
)

// PropValue is a tagged union of the only two scalar shapes a property may
// hold: a 64-bit signed integer, or a UTF-8 string. There is no float
// variant, no null, and no nested object; relationships between objects are
// modelled by storing another object's object_id as a Number.
type PropValue struct {
	kind propKind
	num  int64
	str  string
}

// Number constructs a PropValue holding an integer.
func Number(n int64) PropValue {
	return PropValue{kind: propNumber, num: n}
}

// String constructs a PropValue holding a string.
func String(s string) PropValue {
	return PropValue{kind: propString, str: s}
}

// AsNumber returns the integer value and true if this PropValue is a Number,
// or (0, false) otherwise.
func (v PropValue) AsNumber() (int64, bool) {
	if v.kind != propNumber {
		return 0, false
	}
	return v.num, true
}

// AsString returns the string value and true if this PropValue is a String,
// or ("", false) otherwise.
func (v PropValue) AsString() (string, bool) {
	if v.kind != propString {
		return "", false
	}
	return v.str, true
}

// IsNumber reports whether this PropValue holds a Number.
func (v PropValue) IsNumber() bool { return v.kind == propNumber }

// IsString reports whether this PropValue holds a String.
func (v PropValue) IsString() bool { return v.kind == propString }

// Equal reports structural equality between two PropValues.
func (v PropValue) Equal(other PropValue) bool {
	if v.kind != other.kind {
		return false
	}
	if v.kind == propNumber {
		return v.num == other.num
	}
	return v.str == other.str
}

func (v PropValue) String() string {
	if v.kind == propNumber {
		return fmt.Sprintf("%d", v.num)
	}
	return v.str
}

// MarshalJSON renders a PropValue as a bare JSON number or string.
func (v PropValue) MarshalJSON() ([]byte, error) {
	if v.kind == propNumber {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON rejects anything that is not a JSON string or a JSON number
// representable as an int64; there is no float variant and no null.
func (v *PropValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	pv, err := PropValueFromJSON(raw)
	if err != nil {
		return err
	}
	*v = pv
	return nil
}

// PropValueFromJSON converts an already-decoded JSON value (as produced by
// encoding/json's `any` decoding) into a PropValue. Only strings and
// integers are accepted; floats with a fractional part, bools, null, arrays
// and objects are all rejected.
func PropValueFromJSON(raw any) (PropValue, error) {
	switch t := raw.(type) {
	case string:
		return String(t), nil
	case float64:
		if t != float64(int64(t)) {
			return PropValue{}, fmt.Errorf("%w: non-integer JSON number %v is not a valid PropValue", ErrSerialization, t)
		}
		return Number(int64(t)), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return PropValue{}, fmt.Errorf("%w: JSON number %q is not a valid PropValue: %v", ErrSerialization, t, err)
		}
		return Number(n), nil
	case int64:
		return Number(t), nil
	case int:
		return Number(int64(t)), nil
	default:
		return PropValue{}, fmt.Errorf("%w: JSON value of type %T is not a valid PropValue", ErrSerialization, raw)
	}
}

// Object is a mapping from property name to PropValue. Insertion order is
// not observable. The reserved IdentityField key holds the object's id once
// it has been read from a store; it must be absent from objects passed to
// Checkpoint.Add.
type Object map[string]PropValue

// intoPropValue converts an arbitrary Go value used as a NewObject literal
// into a PropValue. Supported: PropValue, string, any signed integer type,
// and uint, uint8, uint16 and uint32; uint64 is omitted deliberately since
// a value above math.MaxInt64 cannot round-trip through Number's int64
// storage, and a uint above math.MaxInt64 panics for the same reason.
func intoPropValue(v any) PropValue {
	switch t := v.(type) {
	case PropValue:
		return t
	case string:
		return String(t)
	case int:
		return Number(int64(t))
	case int8:
		return Number(int64(t))
	case int16:
		return Number(int64(t))
	case int32:
		return Number(int64(t))
	case int64:
		return Number(t)
	case uint:
		if uint64(t) > math.MaxInt64 {
			panic(fmt.Sprintf("qualia.NewObject: uint value %d does not fit in a Number", t))
		}
		return Number(int64(t))
	case uint8:
		return Number(int64(t))
	case uint16:
		return Number(int64(t))
	case uint32:
		return Number(int64(t))
	default:
		panic(fmt.Sprintf("qualia.NewObject: unsupported value type %T", v))
	}
}

// NewObject is a literal builder taking alternating (key, value) pairs,
// where values may be a PropValue, a string, a signed integer type, or uint,
// uint8, uint16 or uint32 (see intoPropValue). Duplicate keys overwrite
// earlier ones.
func NewObject(kvs ...any) Object {
	if len(kvs)%2 != 0 {
		panic("qualia.NewObject: odd number of arguments, expected (key, value) pairs")
	}
	obj := make(Object, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			panic(fmt.Sprintf("qualia.NewObject: key at position %d is %T, not a string", i, kvs[i]))
		}
		obj[key] = intoPropValue(kvs[i+1])
	}
	return obj
}

// ID returns the object's identity and true if it has one (IdentityField is
// present), or (0, false) otherwise.
func (o Object) ID() (int64, bool) {
	v, ok := o[IdentityField]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// Merge returns a new Object with every key from patch overlaid onto o.
// Merge never deletes a key: a patch entry holding a value still sets that
// value, matching §9's "null does not delete" decision (there is no null
// PropValue to delete with in the first place).
func (o Object) Merge(patch Object) Object {
	merged := make(Object, len(o)+len(patch))
	for k, v := range o {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// Equal reports whether two Objects have identical keys and values.
func (o Object) Equal(other Object) bool {
	if len(o) != len(other) {
		return false
	}
	for k, v := range o {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// withoutIdentity returns a copy of o with IdentityField removed, used
// before serialising an object's properties for storage: object_id is
// always a column, never part of the JSON properties blob.
func (o Object) withoutIdentity() Object {
	if _, ok := o[IdentityField]; !ok {
		return o
	}
	cp := make(Object, len(o))
	for k, v := range o {
		if k == IdentityField {
			continue
		}
		cp[k] = v
	}
	return cp
}

// toJSON serializes o (minus IdentityField) to the JSON blob stored in
// objects.properties or object_changes.previous.
func (o Object) toJSON() ([]byte, error) {
	data, err := json.Marshal(o.withoutIdentity())
	if err != nil {
		return nil, fmt.Errorf("%w: encoding object properties: %v", ErrSerialization, err)
	}
	return data, nil
}

// objectFromJSON parses a stored properties/previous blob into an Object,
// optionally injecting an identity value. It decodes numbers via
// json.Number rather than float64 so that object_id-valued properties
// (§3) above 2^53 survive the round trip.
func objectFromJSON(data []byte, id *int64) (Object, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding object properties: %v", ErrSerialization, err)
	}
	obj := make(Object, len(raw)+1)
	for k, v := range raw {
		pv, err := PropValueFromJSON(v)
		if err != nil {
			return nil, err
		}
		obj[k] = pv
	}
	if id != nil {
		obj[IdentityField] = Number(*id)
	}
	return obj, nil
}
