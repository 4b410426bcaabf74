package pta

import "fmt"

// interner hands out one canonical entity per key.
type interner[E any] struct {
	kind   Kind
	check  func(key string) string
	create func(key string) (*E, error)
	byKey  map[string]*E
	order  []*E
}

func newInterner[E any](kind Kind, check func(string) string, create func(string) (*E, error)) interner[E] {
	return interner[E]{
		kind:   kind,
		check:  check,
		create: create,
		byKey:  make(map[string]*E),
	}
}

func (in *interner[E]) get(key string) (*E, error) {
	if e, ok := in.byKey[key]; ok {
		return e, nil
	}
	if reason := in.check(key); reason != "" {
		return nil, &MalformedKeyError{Kind: in.kind, Key: key, Reason: reason}
	}
	e, err := in.create(key)
	if err != nil {
		return nil, err
	}
	in.byKey[key] = e
	in.order = append(in.order, e)
	return e, nil
}

func (in *interner[E]) lookup(key string) (*E, bool) {
	e, ok := in.byKey[key]
	return e, ok
}

func (in *interner[E]) all() []*E {
	out := make([]*E, len(in.order))
	copy(out, in.order)
	return out
}

// receiverTable records which variable is the receiver of which instance
// method. It is shared by the variable and method factories so that a
// receiver is recognised whichever of the two is interned first.
type receiverTable struct {
	byMethod map[string]string
	byVar    map[string]string
}

func newReceiverTable() *receiverTable {
	return &receiverTable{
		byMethod: make(map[string]string),
		byVar:    make(map[string]string),
	}
}

// Factories bundles the four interning tables of one construction run.
type Factories struct {
	Variables *VariableFactory
	Methods   *MethodFactory
	Types     *TypeFactory
	Objects   *ObjectFactory

	receivers *receiverTable
}

// NewFactories returns empty factories sharing one receiver table.
func NewFactories() *Factories {
	receivers := newReceiverTable()
	vars := newVariableFactory(receivers)
	return &Factories{
		Variables: vars,
		Methods:   newMethodFactory(vars, receivers),
		Types:     newTypeFactory(),
		Objects:   newObjectFactory(),
		receivers: receivers,
	}
}

// DeclareReceiver records variable as the receiver of method. It must be
// called before either key is interned; redeclaring the same pair is a no-op.
func (f *Factories) DeclareReceiver(method, variable string) error {
	if reason := checkMethodKey(method); reason != "" {
		return &MalformedKeyError{Kind: KindMethod, Key: method, Reason: reason}
	}
	if reason := checkPlainKey(variable); reason != "" {
		return &MalformedKeyError{Kind: KindVariable, Key: variable, Reason: reason}
	}

	r := f.receivers
	if prev, ok := r.byMethod[method]; ok {
		if prev == variable {
			return nil
		}
		return fmt.Errorf("%w: %s has receivers %s and %s", ErrReceiverConflict, method, prev, variable)
	}
	if prev, ok := r.byVar[variable]; ok {
		return fmt.Errorf("%w: %s is the receiver of %s and %s", ErrReceiverConflict, variable, prev, method)
	}
	if _, ok := f.Methods.Lookup(method); ok {
		return fmt.Errorf("%w: %s was already interned as a static method", ErrReceiverConflict, method)
	}
	if _, ok := f.Variables.Lookup(variable); ok {
		return fmt.Errorf("%w: %s was already interned as a local variable", ErrReceiverConflict, variable)
	}

	r.byMethod[method] = variable
	r.byVar[variable] = method
	return nil
}

// HasReceiver reports whether a receiver has been declared for method.
func (f *Factories) HasReceiver(method string) bool {
	_, ok := f.receivers.byMethod[method]
	return ok
}

// VariableFactory interns variables.
type VariableFactory struct {
	in interner[Variable]
}

func newVariableFactory(receivers *receiverTable) *VariableFactory {
	f := &VariableFactory{}
	f.in = newInterner(KindVariable, checkPlainKey, func(key string) (*Variable, error) {
		return &Variable{key: key, thisOf: receivers.byVar[key]}, nil
	})
	return f
}

// Get returns the variable for key, interning it on first use.
func (f *VariableFactory) Get(key string) (*Variable, error) { return f.in.get(key) }

// Lookup returns the variable for key without interning.
func (f *VariableFactory) Lookup(key string) (*Variable, bool) { return f.in.lookup(key) }

// All returns every variable produced so far.
func (f *VariableFactory) All() []*Variable { return f.in.all() }

// Len returns the number of interned variables.
func (f *VariableFactory) Len() int { return len(f.in.order) }

// MethodFactory interns methods. A method with a declared receiver is an
// instance method whose This variable comes from the variable factory.
type MethodFactory struct {
	in interner[Method]
}

func newMethodFactory(vars *VariableFactory, receivers *receiverTable) *MethodFactory {
	f := &MethodFactory{}
	f.in = newInterner(KindMethod, checkMethodKey, func(sig string) (*Method, error) {
		m := &Method{key: sig}
		if name, ok := receivers.byMethod[sig]; ok {
			this, err := vars.Get(name)
			if err != nil {
				return nil, err
			}
			m.this = this
		}
		return m, nil
	})
	return f
}

// Get returns the method for sig, interning it on first use.
func (f *MethodFactory) Get(sig string) (*Method, error) { return f.in.get(sig) }

// Lookup returns the method for sig without interning.
func (f *MethodFactory) Lookup(sig string) (*Method, bool) { return f.in.lookup(sig) }

// All returns every method produced so far.
func (f *MethodFactory) All() []*Method { return f.in.all() }

// Len returns the number of interned methods.
func (f *MethodFactory) Len() int { return len(f.in.order) }

// TypeFactory interns types.
type TypeFactory struct {
	in interner[Type]
}

func newTypeFactory() *TypeFactory {
	return &TypeFactory{in: newInterner(KindType, checkPlainKey, func(key string) (*Type, error) {
		return &Type{key: key}, nil
	})}
}

// Get returns the type for key, interning it on first use.
func (f *TypeFactory) Get(key string) (*Type, error) { return f.in.get(key) }

// Lookup returns the type for key without interning.
func (f *TypeFactory) Lookup(key string) (*Type, bool) { return f.in.lookup(key) }

// All returns every type produced so far.
func (f *TypeFactory) All() []*Type { return f.in.all() }

// Len returns the number of interned types.
func (f *TypeFactory) Len() int { return len(f.in.order) }

// ObjectFactory interns heap objects.
type ObjectFactory struct {
	in interner[Object]
}

func newObjectFactory() *ObjectFactory {
	return &ObjectFactory{in: newInterner(KindObject, checkPlainKey, func(key string) (*Object, error) {
		return &Object{key: key}, nil
	})}
}

// Get returns the object for key, interning it on first use.
func (f *ObjectFactory) Get(key string) (*Object, error) { return f.in.get(key) }

// Lookup returns the object for key without interning.
func (f *ObjectFactory) Lookup(key string) (*Object, bool) { return f.in.lookup(key) }

// All returns every object produced so far.
func (f *ObjectFactory) All() []*Object { return f.in.all() }

// Len returns the number of interned objects.
func (f *ObjectFactory) Len() int { return len(f.in.order) }
