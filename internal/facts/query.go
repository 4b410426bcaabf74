// Package facts defines the boundary between the points-to materialization
// core and the database that holds the analysis output.
//
// A Source answers named queries with one-shot streams of fixed-arity string
// tuples. The core never sees how facts are stored, parsed or cached; the
// backends live in the datalog, sqlitedb and cache subpackages.
package facts

import "fmt"

// Query names one relation the core reads from a Source.
type Query struct {
	// Name is the human-readable query name used in logs and the CLI.
	Name string
	// Predicate is the relation name inside the backing database.
	Predicate string
	// Arity is the number of columns every tuple carries.
	Arity int
}

func (q Query) String() string {
	return fmt.Sprintf("%s/%d", q.Predicate, q.Arity)
}

// The fixed query catalogue. Column order is part of the contract.
var (
	// InstanceMethods: (method) for every reachable instance method.
	InstanceMethods = Query{Name: "instance methods", Predicate: "inst_method", Arity: 1}
	// ThisVars: (method, variable) naming the receiver of an instance method.
	ThisVars = Query{Name: "this variables", Predicate: "this_var", Arity: 2}
	// VarPointsTo: (object, variable).
	VarPointsTo = Query{Name: "variable-points-to-object", Predicate: "var_points_to", Arity: 2}
	// ObjectIn: (object, method) where the object is allocated.
	ObjectIn = Query{Name: "object-in-method", Predicate: "object_in", Arity: 2}
	// CallSiteIn: (callsite, method) containing the call site.
	CallSiteIn = Query{Name: "callsite-in-method", Predicate: "callsite_in", Arity: 2}
	// CallEdges: (callsite, callee).
	CallEdges = Query{Name: "call edges", Predicate: "call_edge", Arity: 2}
	// SpecialObjects: (object) allocated by the runtime itself.
	SpecialObjects = Query{Name: "special objects", Predicate: "special_object", Arity: 1}
	// DeclaringClassAlloc: (object, type) declaring the allocating method.
	DeclaringClassAlloc = Query{Name: "declaring-class-allocation", Predicate: "declaring_class_alloc", Arity: 2}
	// VarIn: (variable, method) declaring the variable.
	VarIn = Query{Name: "variable-in-method", Predicate: "var_in", Arity: 2}
)

var catalogue = []Query{
	InstanceMethods,
	ThisVars,
	VarPointsTo,
	ObjectIn,
	CallSiteIn,
	CallEdges,
	SpecialObjects,
	DeclaringClassAlloc,
	VarIn,
}

// Queries returns the query catalogue.
func Queries() []Query {
	out := make([]Query, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup finds a catalogue query by name or predicate.
func Lookup(name string) (Query, bool) {
	for _, q := range catalogue {
		if q.Name == name || q.Predicate == name {
			return q, true
		}
	}
	return Query{}, false
}

// Known reports whether q is part of the catalogue.
func Known(q Query) bool {
	for _, c := range catalogue {
		if c == q {
			return true
		}
	}
	return false
}
