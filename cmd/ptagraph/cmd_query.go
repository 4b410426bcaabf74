package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ptagraph/internal/pta"
)

// queryCmd answers one facade query for one entity
var queryCmd = &cobra.Command{
	Use:   "query [accessor] [key]",
	Short: "Query the materialized analysis",
	Long: `Builds the analysis and answers a single query. Keys are printed sorted,
one per line.

Accessors:
  pts           objects a variable points to
  pts-size      number of points-to facts for a variable
  vars          variables declared in an instance method
  allocated     objects allocated in a method
  callees       methods called from a method
  invoked       methods invoked on an object
  receivers     receiver objects of an instance method
  alloc-type    declaring type of an object's allocation
  alloc-method  method allocating an object
  decl-type     declaring type of a method

Example:
  ptagraph --db out/antlr query callees '<app.Main: void main(java.lang.String[])>'`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

type accessor func(a *pta.Analysis, key string) ([]string, error)

var accessors = map[string]accessor{
	"pts": func(a *pta.Analysis, key string) ([]string, error) {
		v, err := lookupVariable(a, key)
		if err != nil {
			return nil, err
		}
		return keys(a.PointsToSetOf(v)), nil
	},
	"pts-size": func(a *pta.Analysis, key string) ([]string, error) {
		v, err := lookupVariable(a, key)
		if err != nil {
			return nil, err
		}
		return []string{strconv.Itoa(a.PointsToSetSizeOf(v))}, nil
	},
	"vars": func(a *pta.Analysis, key string) ([]string, error) {
		m, err := lookupMethod(a, key)
		if err != nil {
			return nil, err
		}
		return keys(a.VariablesDeclaredIn(m)), nil
	},
	"allocated": func(a *pta.Analysis, key string) ([]string, error) {
		m, err := lookupMethod(a, key)
		if err != nil {
			return nil, err
		}
		return keys(a.ObjectsAllocatedIn(m)), nil
	},
	"callees": func(a *pta.Analysis, key string) ([]string, error) {
		m, err := lookupMethod(a, key)
		if err != nil {
			return nil, err
		}
		return keys(a.CalleesOf(m)), nil
	},
	"invoked": func(a *pta.Analysis, key string) ([]string, error) {
		o, err := lookupObject(a, key)
		if err != nil {
			return nil, err
		}
		return keys(a.MethodsInvokedOn(o)), nil
	},
	"receivers": func(a *pta.Analysis, key string) ([]string, error) {
		m, err := lookupMethod(a, key)
		if err != nil {
			return nil, err
		}
		return keys(a.ReceiverObjectsOf(m)), nil
	},
	"alloc-type": func(a *pta.Analysis, key string) ([]string, error) {
		o, err := lookupObject(a, key)
		if err != nil {
			return nil, err
		}
		t, err := a.DeclaringAllocationTypeOf(o)
		if err != nil {
			return nil, err
		}
		return []string{t.Key()}, nil
	},
	"alloc-method": func(a *pta.Analysis, key string) ([]string, error) {
		o, err := lookupObject(a, key)
		if err != nil {
			return nil, err
		}
		m, ok := a.AllocationMethodOf(o)
		if !ok {
			return nil, nil
		}
		return []string{m.Key()}, nil
	},
	"decl-type": func(a *pta.Analysis, key string) ([]string, error) {
		m, err := lookupMethod(a, key)
		if err != nil {
			return nil, err
		}
		if t := a.DeclaringTypeOf(m); t != nil {
			return []string{t.Key()}, nil
		}
		return nil, nil
	},
}

func accessorNames() []string {
	names := make([]string, 0, len(accessors))
	for name := range accessors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupVariable(a *pta.Analysis, key string) (*pta.Variable, error) {
	if v, ok := a.Variable(key); ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown variable %q", key)
}

func lookupMethod(a *pta.Analysis, key string) (*pta.Method, error) {
	if m, ok := a.Method(key); ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown method %q", key)
}

func lookupObject(a *pta.Analysis, key string) (*pta.Object, error) {
	if o, ok := a.Object(key); ok {
		return o, nil
	}
	return nil, fmt.Errorf("unknown object %q", key)
}

func keys[E interface {
	comparable
	Key() string
}](s pta.Set[E]) []string {
	out := make([]string, 0, s.Len())
	for e := range s.All() {
		out = append(out, e.Key())
	}
	sort.Strings(out)
	return out
}

// runQuery builds the analysis and prints the answer
func runQuery(cmd *cobra.Command, args []string) error {
	name, key := args[0], args[1]
	fn, ok := accessors[name]
	if !ok {
		return fmt.Errorf("unknown accessor %q (valid: %s)", name, strings.Join(accessorNames(), ", "))
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := buildAnalysis(ctx)
	if err != nil {
		return err
	}
	logger.Debug("Answering query", zap.String("accessor", name), zap.String("key", key))

	result, err := fn(a, key)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, line := range result {
		fmt.Fprintln(out, line)
	}
	return nil
}
