// Package param holds the parameter type model and the coercion engine that
// turns raw CLI text into typed argument values.
package param

import (
	"fmt"
	"strings"
)

// Kind tags a declared parameter type. All type information is data; no
// reflection is involved anywhere in dispatch.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
	Optional
	List
	Map
	Enum
	Binary
	JSON
)

// Spec is the tagged-variant type of one parameter.
type Spec struct {
	Kind   Kind
	Elem   *Spec    // inner type for Optional and List; value type for Map
	Key    *Spec    // key type for Map
	Values []string // allowed values for Enum
}

// String renders the type the way help text shows it.
func (s Spec) String() string {
	switch s.Kind {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Optional:
		return s.Elem.String() + "?"
	case List:
		return "list<" + s.Elem.String() + ">"
	case Map:
		return fmt.Sprintf("map<%s,%s>", s.Key, s.Elem)
	case Enum:
		return "enum(" + strings.Join(s.Values, "|") + ")"
	case Binary:
		return "file"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// Repeatable reports whether the flag for this type takes multiple values.
func (s Spec) Repeatable() bool {
	k := s.Kind
	if k == Optional {
		k = s.Elem.Kind
	}
	return k == List || k == Map
}

// State distinguishes the three ways a parameter can arrive at the provider.
// Some provider methods treat an omitted parameter differently from an
// explicit null, so the distinction must survive all the way to the wire.
type State int

const (
	// Omitted: not provided and no concrete default; the argument is left
	// out of the call entirely (the OMIT sentinel of the source SDK).
	Omitted State = iota
	// Null: an explicit null is sent.
	Null
	// Set: a concrete value is sent.
	Set
)

// Value is one coerced argument.
type Value struct {
	State State
	Data  any
}

func Omit() Value       { return Value{State: Omitted} }
func NullValue() Value  { return Value{State: Null} }
func Of(data any) Value { return Value{State: Set, Data: data} }

func (v Value) IsSet() bool { return v.State == Set }

// Parameter describes one declared method parameter.
type Parameter struct {
	Name     string
	Doc      string
	Type     Spec
	Required bool
	Default  Value // meaningful only when Required is false
}
