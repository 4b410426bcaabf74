package pta

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ptagraph/internal/facts"
	"ptagraph/internal/logging"
)

// Analysis is the materialized points-to graph of one construction run.
// After New returns it is never mutated, so any number of goroutines may
// query it concurrently.
type Analysis struct {
	id        uuid.UUID
	factories *Factories

	objects   Set[*Object]
	reachable Set[*Method]
	specials  map[string]struct{}

	diag  Diagnostics
	stats Stats
}

// Diagnostics records the data-sparsity conditions absorbed during
// construction.
type Diagnostics struct {
	// UnresolvedCallEdges counts call edges skipped because their call site
	// had no containing method.
	UnresolvedCallEdges int
	// UnresolvedCallSites lists the distinct call sites behind those edges, sorted.
	UnresolvedCallSites []string
}

// Stats summarises a construction run.
type Stats struct {
	RunID            string
	Variables        int
	Methods          int
	InstanceMethods  int
	Types            int
	Objects          int
	ReachableMethods int
	SpecialObjects   int
	// Facts holds the number of tuples read per query name.
	Facts    map[string]int
	Duration time.Duration
}

type options struct {
	slowPass time.Duration
}

// Option configures New.
type Option func(*options)

// WithSlowPassThreshold makes any pass slower than d log a warning.
func WithSlowPassThreshold(d time.Duration) Option {
	return func(o *options) { o.slowPass = d }
}

// New drains src through the materialization passes and returns the
// resulting Analysis. A source failure, a malformed fact or a malformed key
// aborts construction; no partial Analysis is ever returned.
//
// The database location, cache location and application identifier are
// properties of src; New never inspects them.
func New(ctx context.Context, src facts.Source, opts ...Option) (*Analysis, error) {
	if src == nil {
		return nil, fmt.Errorf("pta: nil fact source: %w", facts.ErrSourceUnavailable)
	}
	o := options{slowPass: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Analysis{
		id:        uuid.New(),
		factories: NewFactories(),
		specials:  make(map[string]struct{}),
		stats:     Stats{Facts: make(map[string]int)},
	}
	logging.Pipeline("Points-to analysis %s: starting", a.id)
	timer := logging.StartTimer(logging.CategoryPipeline, "Points-to analysis")

	b := &builder{
		ctx:         ctx,
		src:         src,
		a:           a,
		interesting: make(map[string]struct{}),
		unresolved:  make(map[string]struct{}),
	}
	if err := b.run(o); err != nil {
		logging.Get(logging.CategoryPipeline).Error("Points-to analysis %s failed: %v", a.id, err)
		return nil, err
	}

	a.stats.Duration = timer.StopWithInfo()
	a.finishStats(b)
	logging.Pipeline("Points-to analysis %s: %d variables, %d methods (%d reachable), %d objects, %d types",
		a.id, a.stats.Variables, a.stats.Methods, a.stats.ReachableMethods, a.stats.Objects, a.stats.Types)
	return a, nil
}

func (a *Analysis) finishStats(b *builder) {
	f := a.factories
	instance := 0
	for _, m := range f.Methods.All() {
		if m.IsInstance() {
			instance++
		}
	}
	a.stats.RunID = a.id.String()
	a.stats.Variables = f.Variables.Len()
	a.stats.Methods = f.Methods.Len()
	a.stats.InstanceMethods = instance
	a.stats.Types = f.Types.Len()
	a.stats.Objects = a.objects.Len()
	a.stats.ReachableMethods = a.reachable.Len()
	a.stats.SpecialObjects = len(a.specials)

	sites := make([]string, 0, len(b.unresolved))
	for cs := range b.unresolved {
		sites = append(sites, cs)
	}
	sort.Strings(sites)
	a.diag.UnresolvedCallSites = sites
}

// ID identifies the construction run that produced a.
func (a *Analysis) ID() uuid.UUID { return a.id }

// Stats returns a summary of the run.
func (a *Analysis) Stats() Stats {
	s := a.stats
	s.Facts = make(map[string]int, len(a.stats.Facts))
	for k, v := range a.stats.Facts {
		s.Facts[k] = v
	}
	return s
}

// Diagnostics returns the sparsity conditions tolerated during construction.
func (a *Analysis) Diagnostics() Diagnostics {
	d := a.diag
	d.UnresolvedCallSites = append([]string(nil), a.diag.UnresolvedCallSites...)
	return d
}
