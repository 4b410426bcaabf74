package pta

import (
	"fmt"
	"iter"
)

// Attribute names a derived property materialized onto an entity.
type Attribute uint8

const (
	// PointsTo: set of objects a receiver variable may point to.
	PointsTo Attribute = iota
	// PointsToSize: number of points-to facts seen for a variable.
	PointsToSize
	// Allocated: set of normal objects allocated in a method.
	Allocated
	// AllocationMethod: method allocating a normal object.
	AllocationMethod
	// Callee: set of methods a method calls.
	Callee
	// MethodsInvokedOn: set of instance methods invoked on an object.
	MethodsInvokedOn
	// ReceiverObjects: set of objects an instance method is invoked on.
	ReceiverObjects
	// DeclaringAllocationType: type declaring the method that allocates an object.
	DeclaringAllocationType
	// VarsDeclared: set of variables declared in an instance method.
	VarsDeclared
	// DeclaringType: type declaring a method.
	DeclaringType

	numAttributes
)

var attributeInfo = [numAttributes]struct {
	name string
	set  bool
}{
	PointsTo:                {"pts", true},
	PointsToSize:            {"pts-size", false},
	Allocated:               {"allocated", true},
	AllocationMethod:        {"allocation-method", false},
	Callee:                  {"callee", true},
	MethodsInvokedOn:        {"methods-invoked-on", true},
	ReceiverObjects:         {"receiver-objects", true},
	DeclaringAllocationType: {"declaring-allocation-type", false},
	VarsDeclared:            {"vars-declared", true},
	DeclaringType:           {"declaring-type", false},
}

func (a Attribute) String() string {
	if a >= numAttributes {
		return fmt.Sprintf("Attribute(%d)", uint8(a))
	}
	return attributeInfo[a].name
}

// IsSet reports whether a is an accumulating, set-valued attribute.
func (a Attribute) IsSet() bool {
	return a < numAttributes && attributeInfo[a].set
}

// Attributes is the per-entity attribute store. The zero value is ready to
// use. Scalar attributes are overwritten by SetAttribute; set attributes only
// grow, through AddToAttributeSet.
//
// Mixing the two shapes for one Attribute is a programming error and panics.
type Attributes struct {
	scalars map[Attribute]any
	sets    map[Attribute]any // Attribute -> map[T]struct{}
}

// SetAttribute stores a scalar value.
func (a *Attributes) SetAttribute(attr Attribute, value any) {
	mustBeScalar(attr)
	if a.scalars == nil {
		a.scalars = make(map[Attribute]any, 2)
	}
	a.scalars[attr] = value
}

// GetAttribute returns a scalar value and whether it is present.
func (a *Attributes) GetAttribute(attr Attribute) (any, bool) {
	mustBeScalar(attr)
	v, ok := a.scalars[attr]
	return v, ok
}

// HasAttribute reports whether attr has been written, scalar or set.
func (a *Attributes) HasAttribute(attr Attribute) bool {
	if attr.IsSet() {
		_, ok := a.sets[attr]
		return ok
	}
	_, ok := a.scalars[attr]
	return ok
}

// AddToAttributeSet inserts elem into the set attribute attr, creating the
// set on first use. It reports whether elem was new.
func AddToAttributeSet[T comparable](a *Attributes, attr Attribute, elem T) bool {
	mustBeSet(attr)
	if a.sets == nil {
		a.sets = make(map[Attribute]any, 2)
	}
	m, ok := a.sets[attr]
	if !ok {
		s := map[T]struct{}{elem: {}}
		a.sets[attr] = s
		return true
	}
	s, ok := m.(map[T]struct{})
	if !ok {
		panic(fmt.Sprintf("attribute %s holds %T, not a set of %T", attr, m, elem))
	}
	if _, dup := s[elem]; dup {
		return false
	}
	s[elem] = struct{}{}
	return true
}

// AttributeSet returns a read-only view of the set attribute attr. An absent
// attribute reads as the empty set.
func AttributeSet[T comparable](a *Attributes, attr Attribute) Set[T] {
	mustBeSet(attr)
	m, ok := a.sets[attr]
	if !ok {
		return Set[T]{}
	}
	s, ok := m.(map[T]struct{})
	if !ok {
		var zero T
		panic(fmt.Sprintf("attribute %s holds %T, not a set of %T", attr, m, zero))
	}
	return Set[T]{m: s}
}

func mustBeScalar(attr Attribute) {
	if attr.IsSet() || attr >= numAttributes {
		panic(fmt.Sprintf("attribute %s is not scalar", attr))
	}
}

func mustBeSet(attr Attribute) {
	if !attr.IsSet() {
		panic(fmt.Sprintf("attribute %s is not set-valued", attr))
	}
}

// Set is a read-only view of a set-valued attribute. Iteration order is
// unspecified. The zero Set is empty.
type Set[T comparable] struct {
	m map[T]struct{}
}

// NewSet builds a standalone set, used for global collections.
func NewSet[T comparable](elems ...T) Set[T] {
	m := make(map[T]struct{}, len(elems))
	for _, e := range elems {
		m[e] = struct{}{}
	}
	return Set[T]{m: m}
}

// Has reports membership.
func (s Set[T]) Has(elem T) bool {
	_, ok := s.m[elem]
	return ok
}

// Len returns the number of elements.
func (s Set[T]) Len() int { return len(s.m) }

// All iterates over the elements.
func (s Set[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for e := range s.m {
			if !yield(e) {
				return
			}
		}
	}
}

// Slice copies the elements into a new slice.
func (s Set[T]) Slice() []T {
	out := make([]T, 0, len(s.m))
	for e := range s.m {
		out = append(out, e)
	}
	return out
}

// add is used by the analysis for the global sets it owns.
func (s *Set[T]) add(elem T) bool {
	if s.m == nil {
		s.m = make(map[T]struct{})
	}
	if _, dup := s.m[elem]; dup {
		return false
	}
	s.m[elem] = struct{}{}
	return true
}
