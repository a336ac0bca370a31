// Package term models the dynamically typed values exchanged with a host
// runtime. A Term is one of a closed set of variants; the set is sealed so
// that consumers can switch over it exhaustively.
package term

import (
	"fmt"
	"sort"
	"strings"
)

// Term is a value in the host runtime's tagged representation.
type Term interface {
	// Tag returns the wire tag of the variant.
	Tag() string
	isTerm()
}

// Atom is a symbolic constant. The atom "nil" stands for absence.
type Atom string

// Bool is a boolean term.
type Bool bool

// Int is a 64-bit signed integer term.
type Int int64

// Float is a 64-bit floating point term.
type Float float64

// String is a text term.
type String string

// Binary is a byte-sequence term.
type Binary []byte

// List is an ordered sequence of terms.
type List []Term

// Struct is a tagged record: a module name plus named fields.
type Struct struct {
	Module string
	Fields map[string]Term
}

// Nil is the atom the host uses for absent values.
const Nil = Atom("nil")

const (
	TagAtom   = "atom"
	TagBool   = "bool"
	TagInt    = "int"
	TagFloat  = "float"
	TagString = "string"
	TagBinary = "binary"
	TagList   = "list"
	TagStruct = "struct"
)

func (Atom) Tag() string   { return TagAtom }
func (Bool) Tag() string   { return TagBool }
func (Int) Tag() string    { return TagInt }
func (Float) Tag() string  { return TagFloat }
func (String) Tag() string { return TagString }
func (Binary) Tag() string { return TagBinary }
func (List) Tag() string   { return TagList }
func (Struct) Tag() string { return TagStruct }

func (Atom) isTerm()   {}
func (Bool) isTerm()   {}
func (Int) isTerm()    {}
func (Float) isTerm()  {}
func (String) isTerm() {}
func (Binary) isTerm() {}
func (List) isTerm()   {}
func (Struct) isTerm() {}

// IsNil reports whether t is the nil atom.
func IsNil(t Term) bool {
	a, ok := t.(Atom)
	return ok && a == Nil
}

// NewStruct builds a Struct, allocating the field map when fields is nil.
func NewStruct(module string, fields map[string]Term) Struct {
	if fields == nil {
		fields = map[string]Term{}
	}
	return Struct{Module: module, Fields: fields}
}

// Field returns the named field of s, or the nil atom if it is missing.
func (s Struct) Field(name string) Term {
	if v, ok := s.Fields[name]; ok && v != nil {
		return v
	}
	return Nil
}

// Format renders a term roughly the way the host would print it. It is
// meant for logs and error messages.
func Format(t Term) string {
	switch v := t.(type) {
	case nil:
		return "<nil>"
	case Atom:
		return ":" + string(v)
	case Bool:
		return fmt.Sprintf("%t", bool(v))
	case Int:
		return fmt.Sprintf("%d", int64(v))
	case Float:
		return fmt.Sprintf("%g", float64(v))
	case String:
		return fmt.Sprintf("%q", string(v))
	case Binary:
		return fmt.Sprintf("<<%d bytes>>", len(v))
	case List:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = Format(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Struct:
		names := make([]string, 0, len(v.Fields))
		for name := range v.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + ": " + Format(v.Fields[name])
		}
		return "%" + v.Module + "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}
