// Package cjson implements the tag-indexed binary item format ("CJSON").
//
// An item is converted to a Value tree first, and the tree is then written
// using compact integer tags instead of field names. The tag table is owned by
// the server and shipped to clients as a PayloadType; the client may allocate
// extra tags for names the server has not seen yet (see TagMatcher), in which
// case the new names travel inside the item (see Encode).
package cjson

import (
	"fmt"

	"github.com/google/uuid"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindUUID
	KindArray
	KindObject
)

var kindNames = [...]string{"null", "bool", "int", "double", "string", "uuid", "array", "object"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Value is a node of an item's value tree. The set of implementations is
// closed: Null, Bool, Int, Double, String, UUID, Array and Object.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	Null   struct{}
	Bool   bool
	Int    int64
	Double float64
	String string
	UUID   uuid.UUID
	Array  []Value
	Object []Field
)

type Field struct {
	Name  string
	Value Value
}

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Double) Kind() Kind { return KindDouble }
func (String) Kind() Kind { return KindString }
func (UUID) Kind() Kind   { return KindUUID }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Int) isValue()    {}
func (Double) isValue() {}
func (String) isValue() {}
func (UUID) isValue()   {}
func (Array) isValue()  {}
func (Object) isValue() {}

// Get returns the value of the named field, or nil.
func (o Object) Get(name string) Value {
	for _, f := range o {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

func (u UUID) String() string {
	return uuid.UUID(u).String()
}

func unexpectedValue(v Value) string {
	return fmt.Sprintf("cjson: unexpected value %T", v)
}
