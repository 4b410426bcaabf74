// Package pta materializes the output of a whole-program points-to analysis
// into an in-memory graph of interned entities carrying derived attributes.
//
// New drains a facts.Source through a fixed sequence of passes. The returned
// Analysis is immutable and safe for concurrent readers.
package pta

import "strings"

// Kind distinguishes the entity families.
type Kind uint8

const (
	KindVariable Kind = iota
	KindMethod
	KindType
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindMethod:
		return "method"
	case KindType:
		return "type"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Element is implemented by every interned entity.
type Element interface {
	Key() string
	Kind() Kind
	String() string
	attrs() *Attributes
}

// Variable is a local or receiver variable, keyed by its qualified name.
type Variable struct {
	Attributes
	key    string
	thisOf string
}

func (v *Variable) Key() string { return v.key }
func (v *Variable) Kind() Kind { return KindVariable }
func (v *Variable) String() string { return v.key }
func (v *Variable) attrs() *Attributes { return &v.Attributes }

// IsThis reports whether v is the receiver variable of an instance method.
func (v *Variable) IsThis() bool { return v.thisOf != "" }

// ThisOf returns the signature of the method v is the receiver of, or "".
func (v *Variable) ThisOf() string { return v.thisOf }

// Method is keyed by its full signature, <Type: ret name(params)>.
type Method struct {
	Attributes
	key  string
	this *Variable
}

func (m *Method) Key() string { return m.key }
func (m *Method) Kind() Kind { return KindMethod }
func (m *Method) String() string { return m.key }
func (m *Method) attrs() *Attributes { return &m.Attributes }

// IsInstance reports whether m has a receiver.
func (m *Method) IsInstance() bool { return m.this != nil }

// This returns the receiver variable, or nil for static methods.
func (m *Method) This() *Variable { return m.this }

// Type is keyed by its qualified name.
type Type struct {
	Attributes
	key string
}

func (t *Type) Key() string { return t.key }
func (t *Type) Kind() Kind { return KindType }
func (t *Type) String() string { return t.key }
func (t *Type) attrs() *Attributes { return &t.Attributes }

// Object is an abstract heap object, keyed by its allocation-site identifier.
type Object struct {
	Attributes
	key string
}

func (o *Object) Key() string { return o.key }
func (o *Object) Kind() Kind { return KindObject }
func (o *Object) String() string { return o.key }
func (o *Object) attrs() *Attributes { return &o.Attributes }

// classConstantPrefix marks heap objects that stand for class literals.
const classConstantPrefix = "<class "

// IsClassConstant reports whether o denotes a class-literal constant.
func (o *Object) IsClassConstant() bool {
	return isClassConstant(o.key)
}

func isClassConstant(key string) bool {
	return strings.HasPrefix(key, classConstantPrefix)
}
