package pta

import "ptagraph/internal/logging"

// PointsToAnalysis is the read-only view analysis clients program against.
// Set-valued accessors return an empty set when nothing was recorded.
type PointsToAnalysis interface {
	AllObjects() Set[*Object]
	ReachableMethods() Set[*Method]
	PointsToSetOf(v *Variable) Set[*Object]
	PointsToSetSizeOf(v *Variable) int
	VariablesDeclaredIn(m *Method) Set[*Variable]
	ObjectsAllocatedIn(m *Method) Set[*Object]
	CalleesOf(m *Method) Set[*Method]
	MethodsInvokedOn(o *Object) Set[*Method]
	ReceiverObjectsOf(m *Method) Set[*Object]
	DeclaringAllocationTypeOf(o *Object) (*Type, error)
	DeclaringTypeOf(m *Method) *Type
}

var _ PointsToAnalysis = (*Analysis)(nil)

// AllObjects returns every object that appeared in a points-to fact.
func (a *Analysis) AllObjects() Set[*Object] { return a.objects }

// ReachableMethods returns the methods on either end of a resolved call edge.
func (a *Analysis) ReachableMethods() Set[*Method] { return a.reachable }

// PointsToSetOf returns the objects v may point to. Only receiver variables
// of instance methods retain their set; an empty result for a variable with a
// non-zero PointsToSetSizeOf means the set was not retained.
func (a *Analysis) PointsToSetOf(v *Variable) Set[*Object] {
	if v == nil {
		return Set[*Object]{}
	}
	s := AttributeSet[*Object](&v.Attributes, PointsTo)
	if s.Len() == 0 && !v.HasAttribute(PointsToSize) {
		logging.QueryDebug("variable %s points to nothing (null reference)", v)
	}
	return s
}

// PointsToSetSizeOf returns the number of points-to facts seen for v.
func (a *Analysis) PointsToSetSizeOf(v *Variable) int {
	if v == nil {
		return 0
	}
	n, ok := v.GetAttribute(PointsToSize)
	if !ok {
		return 0
	}
	return n.(int)
}

// VariablesDeclaredIn is always empty for static methods.
func (a *Analysis) VariablesDeclaredIn(m *Method) Set[*Variable] {
	if m == nil {
		return Set[*Variable]{}
	}
	return AttributeSet[*Variable](&m.Attributes, VarsDeclared)
}

// ObjectsAllocatedIn returns the normal objects allocated in m.
func (a *Analysis) ObjectsAllocatedIn(m *Method) Set[*Object] {
	if m == nil {
		return Set[*Object]{}
	}
	return AttributeSet[*Object](&m.Attributes, Allocated)
}

func (a *Analysis) CalleesOf(m *Method) Set[*Method] {
	if m == nil {
		return Set[*Method]{}
	}
	return AttributeSet[*Method](&m.Attributes, Callee)
}

func (a *Analysis) MethodsInvokedOn(o *Object) Set[*Method] {
	if o == nil {
		return Set[*Method]{}
	}
	return AttributeSet[*Method](&o.Attributes, MethodsInvokedOn)
}

func (a *Analysis) ReceiverObjectsOf(m *Method) Set[*Object] {
	if m == nil {
		return Set[*Object]{}
	}
	return AttributeSet[*Object](&m.Attributes, ReceiverObjects)
}

// DeclaringAllocationTypeOf returns the type o's allocation is attributed
// to. Every object the analysis knows must have one, so a missing value is
// reported as a *ContractViolationError rather than an empty result.
func (a *Analysis) DeclaringAllocationTypeOf(o *Object) (*Type, error) {
	if o == nil {
		return nil, &ContractViolationError{Entity: &Object{}, Err: ErrNoDeclaringAllocationType}
	}
	v, ok := o.GetAttribute(DeclaringAllocationType)
	if !ok {
		logging.Get(logging.CategoryQuery).Error("object %s has no declaring allocation type", o)
		return nil, &ContractViolationError{Entity: o, Err: ErrNoDeclaringAllocationType}
	}
	return v.(*Type), nil
}

// DeclaringTypeOf returns the type named in m's signature. It is nil only for
// a method that does not belong to this Analysis.
func (a *Analysis) DeclaringTypeOf(m *Method) *Type {
	if m == nil {
		return nil
	}
	v, ok := m.GetAttribute(DeclaringType)
	if !ok {
		return nil
	}
	return v.(*Type)
}

// AllocationMethodOf returns the method allocating a normal object.
func (a *Analysis) AllocationMethodOf(o *Object) (*Method, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.GetAttribute(AllocationMethod)
	if !ok {
		return nil, false
	}
	return v.(*Method), true
}

// IsNormalObject reports whether o is neither special nor a class constant.
func (a *Analysis) IsNormalObject(o *Object) bool {
	return o != nil && a.isNormal(o.key)
}

func (a *Analysis) isNormal(key string) bool {
	if _, special := a.specials[key]; special {
		return false
	}
	return !isClassConstant(key)
}

// Variable looks up an interned variable by key.
func (a *Analysis) Variable(key string) (*Variable, bool) {
	return a.factories.Variables.Lookup(key)
}

// Method looks up an interned method by signature.
func (a *Analysis) Method(sig string) (*Method, bool) {
	return a.factories.Methods.Lookup(sig)
}

// Object looks up an interned object by key.
func (a *Analysis) Object(key string) (*Object, bool) {
	return a.factories.Objects.Lookup(key)
}

// Type looks up an interned type by name.
func (a *Analysis) Type(name string) (*Type, bool) {
	return a.factories.Types.Lookup(name)
}

// Methods returns every interned method.
func (a *Analysis) Methods() []*Method { return a.factories.Methods.All() }
