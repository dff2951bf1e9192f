/*
 * This file is subject to the terms and conditions defined in
 * file 'LICENSE.md', which is part of this source code package.
 */

package core

import (
	"fmt"
	"strings"
)

// Object is the interface implemented by all nine PDF object kinds this
// reader understands. String returns a debug representation; it is not a
// serializer (producing PDF bytes back out is out of scope for this reader).
type Object interface {
	String() string
}

// Bool represents the PDF boolean object.
type Bool bool

// Null represents the PDF null object.
type Null struct{}

// Int represents an integer numeric object.
type Int int64

// Real represents a real (floating point) numeric object.
type Real float64

// StringObj represents a PDF string object. Literal and hex strings are
// indistinguishable once parsed: both decode to an opaque byte sequence.
type StringObj []byte

// Name represents a PDF name object, stored without its leading '/' and with
// any #hh escapes already decoded.
type Name string

// Array is an ordered sequence of objects.
type Array []Object

// dictEntry is one key/value pair of a Dict, in source order.
type dictEntry struct {
	key Name
	val Object
}

// Dict is an ordered sequence of (Name, Object) pairs. Duplicate keys are
// permitted; Lookup returns the first occurrence.
type Dict struct {
	entries []dictEntry
}

// NullObject is the stable sentinel Dict.Lookup and Resolve return for a
// missing key or an unresolvable reference. Absence is never reported as an
// error; callers compare against this value or type-switch on Null.
var NullObject Object = Null{}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{}
}

// Set appends or overwrites key -> val. An existing key keeps its original
// position in Keys() but its value is replaced; a fresh key is appended.
func (d *Dict) Set(key Name, val Object) {
	for i := range d.entries {
		if d.entries[i].key == key {
			d.entries[i].val = val
			return
		}
	}
	d.entries = append(d.entries, dictEntry{key, val})
}

// setFirstOccurrence inserts key -> val only if key is not already present,
// so that a dictionary built by repeatedly parsing "key value" pairs out of
// source preserves the first occurrence's value on a duplicate key. This is
// deliberately distinct from Set, which overwrites on a repeated key and is
// what callers assembling a dict programmatically (not from source) want.
func (d *Dict) setFirstOccurrence(key Name, val Object) {
	for i := range d.entries {
		if d.entries[i].key == key {
			return
		}
	}
	d.entries = append(d.entries, dictEntry{key, val})
}

// Lookup returns the value for key, or NullObject if key is absent. On
// duplicate keys (permitted by the PDF grammar) the first occurrence wins.
func (d *Dict) Lookup(key Name) Object {
	if d == nil {
		return NullObject
	}
	for _, e := range d.entries {
		if e.key == key {
			return e.val
		}
	}
	return NullObject
}

// Keys returns the dictionary's keys in source order, each appearing once
// even if it was duplicated in the input (first occurrence's position).
func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	keys := make([]Name, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of distinct keys.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Ref is an indirect reference (num, gen).
type Ref struct {
	Num uint64
	Gen uint16
}

// Stream is a stream object: its dictionary plus the file offset of the
// first body byte. The body is never materialized by the parser; retrieving
// decoded bytes is the Reader's job (see resolver.go / filters.go).
type Stream struct {
	Dict       *Dict
	BodyOffset int64
}

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

func (Null) String() string { return "null" }

func (i Int) String() string  { return fmt.Sprintf("%d", int64(i)) }
func (r Real) String() string { return fmt.Sprintf("%g", float64(r)) }

func (s StringObj) String() string { return fmt.Sprintf("(%s)", []byte(s)) }

func (n Name) String() string { return "/" + string(n) }

func (a Array) String() string {
	parts := make([]string, len(a))
	for i, o := range a {
		parts[i] = o.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (d *Dict) String() string {
	var b strings.Builder
	b.WriteString("<<")
	for _, e := range d.entries {
		b.WriteString(" ")
		b.WriteString(e.key.String())
		b.WriteString(" ")
		b.WriteString(e.val.String())
	}
	b.WriteString(" >>")
	return b.String()
}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

func (s *Stream) String() string {
	return fmt.Sprintf("stream(dict=%s, body@%d)", s.Dict.String(), s.BodyOffset)
}

// NumberValue returns the numeric value of obj (Int or Real) and true, or
// (0, false) if obj is not a number. Used for xref/stream dictionary fields
// that PDF producers sometimes write as reals where an integer is expected.
func NumberValue(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// IntValue returns the value of obj as an int64 if it is an Int, or (0,
// false) otherwise. Unlike NumberValue this does not accept Real, since the
// callers (object counts, offsets, generation numbers) require exact
// integers.
func IntValue(obj Object) (int64, bool) {
	if v, ok := obj.(Int); ok {
		return int64(v), true
	}
	return 0, false
}

// NameValue returns the decoded name string of obj, or ("", false).
func NameValue(obj Object) (string, bool) {
	if v, ok := obj.(Name); ok {
		return string(v), true
	}
	return "", false
}

// DictValue returns obj as a *Dict, or (nil, false).
func DictValue(obj Object) (*Dict, bool) {
	v, ok := obj.(*Dict)
	return v, ok
}

// ArrayValue returns obj as an Array, or (nil, false).
func ArrayValue(obj Object) (Array, bool) {
	v, ok := obj.(Array)
	return v, ok
}

// StreamValue returns obj as a *Stream, or (nil, false).
func StreamValue(obj Object) (*Stream, bool) {
	v, ok := obj.(*Stream)
	return v, ok
}

// StringValue returns obj's bytes, or (nil, false).
func StringValue(obj Object) ([]byte, bool) {
	v, ok := obj.(StringObj)
	return v, ok
}

// IsNull reports whether obj is the Null object.
func IsNull(obj Object) bool {
	_, ok := obj.(Null)
	return ok
}
