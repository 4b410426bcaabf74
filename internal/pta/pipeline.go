package pta

import (
	"context"
	"fmt"

	"ptagraph/internal/facts"
	"ptagraph/internal/logging"
)

// builder carries the transient state of one construction run. Nothing in it
// survives New except what is written onto the Analysis.
type builder struct {
	ctx context.Context
	src facts.Source
	a   *Analysis

	interesting map[string]struct{}
	callIn      map[string]string
	unresolved  map[string]struct{}
}

type pass struct {
	name string
	run  func() error
}

// run executes the passes in dependency order. Receivers must be declared
// before any method is interned; interesting variables before points-to sets;
// special objects before allocation sites; invoked-on before receiver objects.
func (b *builder) run(o options) error {
	passes := []pass{
		{"receiver variables", b.declareReceivers},
		{"interesting variables", b.discoverInteresting},
		{"points-to sets", b.buildPointsTo},
		{"special objects", b.classifySpecials},
		{"allocation sites", b.mapAllocations},
		{"call graph", b.buildCallGraph},
		{"methods invoked on objects", b.mapInvokedOn},
		{"receiver objects", b.mapReceiverObjects},
		{"declaring allocation types", b.mapDeclaringAllocationTypes},
		{"declared variables", b.mapDeclaredVariables},
		{"declaring types", b.deriveDeclaringTypes},
	}
	for _, p := range passes {
		timer := logging.StartTimer(logging.CategoryPipeline, p.name)
		if err := p.run(); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		timer.StopWithThreshold(o.slowPass)
	}
	return nil
}

// drain streams q to fn and records how many tuples were read.
func (b *builder) drain(q facts.Query, fn func(facts.Tuple) error) error {
	stream, err := b.src.Query(b.ctx, q)
	if err != nil {
		return fmt.Errorf("query %s: %w", q.Name, err)
	}
	n := 0
	err = stream.ForEach(func(t facts.Tuple) error {
		n++
		return fn(t)
	})
	b.a.stats.Facts[q.Name] += n
	if err != nil {
		return fmt.Errorf("query %s: %w", q.Name, err)
	}
	logging.PipelineDebug("query %s: %d tuples", q.Name, n)
	return nil
}

func (b *builder) declareReceivers() error {
	f := b.a.factories
	return b.drain(facts.ThisVars, func(t facts.Tuple) error {
		return f.DeclareReceiver(t[0], t[1])
	})
}

func (b *builder) discoverInteresting() error {
	f := b.a.factories
	return b.drain(facts.InstanceMethods, func(t facts.Tuple) error {
		sig := t[0]
		if !f.HasReceiver(sig) {
			if err := f.DeclareReceiver(sig, ReceiverName(sig)); err != nil {
				return err
			}
		}
		m, err := f.Methods.Get(sig)
		if err != nil {
			return err
		}
		b.interesting[m.This().Key()] = struct{}{}
		return nil
	})
}

func (b *builder) buildPointsTo() error {
	f := b.a.factories
	return b.drain(facts.VarPointsTo, func(t facts.Tuple) error {
		obj, err := f.Objects.Get(t[0])
		if err != nil {
			return err
		}
		v, err := f.Variables.Get(t[1])
		if err != nil {
			return err
		}

		size := 0
		if cur, ok := v.GetAttribute(PointsToSize); ok {
			size = cur.(int)
		}
		v.SetAttribute(PointsToSize, size+1)

		if _, ok := b.interesting[v.key]; ok {
			AddToAttributeSet(&v.Attributes, PointsTo, obj)
		}
		b.a.objects.add(obj)
		return nil
	})
}

func (b *builder) classifySpecials() error {
	return b.drain(facts.SpecialObjects, func(t facts.Tuple) error {
		if reason := checkPlainKey(t[0]); reason != "" {
			return &MalformedKeyError{Kind: KindObject, Key: t[0], Reason: reason}
		}
		b.a.specials[t[0]] = struct{}{}
		return nil
	})
}

func (b *builder) mapAllocations() error {
	f := b.a.factories
	return b.drain(facts.ObjectIn, func(t facts.Tuple) error {
		if !b.a.isNormal(t[0]) {
			return nil
		}
		obj, err := f.Objects.Get(t[0])
		if err != nil {
			return err
		}
		m, err := f.Methods.Get(t[1])
		if err != nil {
			return err
		}
		AddToAttributeSet(&m.Attributes, Allocated, obj)
		obj.SetAttribute(AllocationMethod, m)
		return nil
	})
}

// buildCallGraph joins call edges to their callers through the call-site
// containment relation. Edges whose call site has no containing method are
// skipped.
func (b *builder) buildCallGraph() error {
	f := b.a.factories
	b.callIn = make(map[string]string)
	err := b.drain(facts.CallSiteIn, func(t facts.Tuple) error {
		b.callIn[t[0]] = t[1]
		return nil
	})
	if err != nil {
		return err
	}

	err = b.drain(facts.CallEdges, func(t facts.Tuple) error {
		callSite, calleeSig := t[0], t[1]
		callerSig, ok := b.callIn[callSite]
		if !ok {
			b.a.diag.UnresolvedCallEdges++
			if _, seen := b.unresolved[callSite]; !seen {
				b.unresolved[callSite] = struct{}{}
				logging.PipelineDebug("call site %s has no containing method, skipping edge to %s", callSite, calleeSig)
			}
			return nil
		}
		caller, err := f.Methods.Get(callerSig)
		if err != nil {
			return err
		}
		callee, err := f.Methods.Get(calleeSig)
		if err != nil {
			return err
		}
		AddToAttributeSet(&caller.Attributes, Callee, callee)
		b.a.reachable.add(caller)
		b.a.reachable.add(callee)
		return nil
	})
	b.callIn = nil
	if err != nil {
		return err
	}
	if n := b.a.diag.UnresolvedCallEdges; n > 0 {
		logging.Get(logging.CategoryPipeline).Warn("%d call edges from %d unresolved call sites were skipped", n, len(b.unresolved))
	}
	return nil
}

func (b *builder) mapInvokedOn() error {
	for _, m := range b.a.factories.Methods.All() {
		if !m.IsInstance() {
			continue
		}
		for obj := range AttributeSet[*Object](&m.This().Attributes, PointsTo).All() {
			AddToAttributeSet(&obj.Attributes, MethodsInvokedOn, m)
		}
	}
	return nil
}

func (b *builder) mapReceiverObjects() error {
	for obj := range b.a.objects.All() {
		for m := range AttributeSet[*Method](&obj.Attributes, MethodsInvokedOn).All() {
			AddToAttributeSet(&m.Attributes, ReceiverObjects, obj)
		}
	}
	return nil
}

func (b *builder) mapDeclaringAllocationTypes() error {
	f := b.a.factories
	return b.drain(facts.DeclaringClassAlloc, func(t facts.Tuple) error {
		obj, err := f.Objects.Get(t[0])
		if err != nil {
			return err
		}
		typ, err := f.Types.Get(t[1])
		if err != nil {
			return err
		}
		obj.SetAttribute(DeclaringAllocationType, typ)
		return nil
	})
}

func (b *builder) mapDeclaredVariables() error {
	f := b.a.factories
	return b.drain(facts.VarIn, func(t facts.Tuple) error {
		v, err := f.Variables.Get(t[0])
		if err != nil {
			return err
		}
		m, err := f.Methods.Get(t[1])
		if err != nil {
			return err
		}
		if m.IsInstance() {
			AddToAttributeSet(&m.Attributes, VarsDeclared, v)
		}
		return nil
	})
}

func (b *builder) deriveDeclaringTypes() error {
	f := b.a.factories
	for _, m := range f.Methods.All() {
		name, err := DeclaringTypeName(m.key)
		if err != nil {
			return &MalformedKeyError{Kind: KindMethod, Key: m.key, Reason: err.Error()}
		}
		typ, err := f.Types.Get(name)
		if err != nil {
			return err
		}
		m.SetAttribute(DeclaringType, typ)
	}
	return nil
}
