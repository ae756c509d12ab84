package traced

import (
	"sort"
	"testing"
)

func TestGraphIDsUnique(t *testing.T) {
	g1 := NewGraph()
	g2 := NewGraph()

	if g1.ID() == "" || g1.ID() == g2.ID() {
		t.Errorf("expected distinct non-empty graph ids, got %q and %q", g1.ID(), g2.ID())
	}
}

func TestAutoGeneratedIDs(t *testing.T) {
	g := NewGraph()

	a := Source(g, 1)
	b := Source(g, 2)

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("expected distinct generated ids, got %q and %q", a.ID(), b.ID())
	}
}

func TestIdempotentRegistration(t *testing.T) {
	g := NewGraph()

	a1 := Source(g, 1, WithName("a"))
	a2 := Source(g, 99, WithName("a"))

	// The second registration is a handle to the same node; the initial
	// value of the first registration wins.
	if v, _ := Resolve(g, a2); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if err := Update(g, a1, 5); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v, _ := Resolve(g, a2); v != 5 {
		t.Errorf("expected both handles to see 5, got %d", v)
	}
}

func TestRegistrationKindMismatchPanics(t *testing.T) {
	g := NewGraph()

	Source(g, 1, WithName("a"))

	defer func() {
		if recover() == nil {
			t.Error("expected panic on re-registering a source as derived")
		}
	}()
	Derived(g, func(ctx *EvalCtx) (int, error) { return 0, nil }, WithName("a"))
}

func TestDependencyEdgesAreInverses(t *testing.T) {
	g := NewGraph()

	a := Source(g, 1, WithName("a"))
	b := Source(g, 2, WithName("b"))
	sum := Derived(g, func(ctx *EvalCtx) (int, error) {
		av, err := Read(ctx, a)
		if err != nil {
			return 0, err
		}
		bv, err := Read(ctx, b)
		if err != nil {
			return 0, err
		}
		return av + bv, nil
	}, WithName("sum"))

	if _, err := Resolve(g, sum); err != nil {
		t.Fatalf("read: %v", err)
	}

	deps := g.DependenciesOf("sum")
	sort.Strings(deps)
	if len(deps) != 2 || deps[0] != "a" || deps[1] != "b" {
		t.Errorf("expected sum -> [a b], got %v", deps)
	}
	for _, src := range []string{"a", "b"} {
		dependents := g.DependentsOf(src)
		if len(dependents) != 1 || dependents[0] != "sum" {
			t.Errorf("expected %s <- [sum], got %v", src, dependents)
		}
	}
}

func TestInspect(t *testing.T) {
	g := NewGraph()

	a := Source(g, 1, WithName("a"))
	doubled := Derived(g, func(ctx *EvalCtx) (int, error) {
		v, err := Read(ctx, a)
		if err != nil {
			return 0, err
		}
		return v * 2, nil
	}, WithName("doubled"))

	info, ok := g.Inspect("doubled")
	if !ok {
		t.Fatal("expected doubled to be registered")
	}
	if info.Kind != KindDerived || info.State != "stale" || info.HasValue {
		t.Errorf("unexpected pre-read snapshot: %+v", info)
	}

	if _, err := Resolve(g, doubled); err != nil {
		t.Fatalf("read: %v", err)
	}

	info, _ = g.Inspect("doubled")
	if info.State != "clean" || !info.HasValue || info.Version != 1 {
		t.Errorf("unexpected post-read snapshot: %+v", info)
	}

	if _, ok := g.Inspect("nope"); ok {
		t.Error("expected Inspect to miss an unregistered id")
	}
}

func TestStatsCounters(t *testing.T) {
	g := NewGraph()

	a := Source(g, 1, WithName("a"))
	doubled := Derived(g, func(ctx *EvalCtx) (int, error) {
		v, err := Read(ctx, a)
		if err != nil {
			return 0, err
		}
		return v * 2, nil
	}, WithName("doubled"))

	if _, err := Resolve(g, doubled); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := Resolve(g, doubled); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := Update(g, a, 2); err != nil {
		t.Fatalf("write: %v", err)
	}

	stats := g.Stats()
	if stats.Recomputes != 1 {
		t.Errorf("expected 1 recompute, got %d", stats.Recomputes)
	}
	if stats.Writes != 1 {
		t.Errorf("expected 1 write, got %d", stats.Writes)
	}
	if stats.Invalidations != 1 {
		t.Errorf("expected 1 invalidation, got %d", stats.Invalidations)
	}
	if stats.Reads == 0 || stats.CacheHits == 0 {
		t.Errorf("expected nonzero reads and cache hits, got %+v", stats)
	}
}

func TestMultiGraphIsolation(t *testing.T) {
	g1 := NewGraph()
	g2 := NewGraph()

	// Same name on two graphs, fully independent state.
	a1 := Source(g1, 1, WithName("a"))
	a2 := Source(g2, 100, WithName("a"))

	if err := Update(g1, a1, 2); err != nil {
		t.Fatalf("write g1: %v", err)
	}

	if v, _ := Resolve(g1, a1); v != 2 {
		t.Errorf("expected g1 a=2, got %d", v)
	}
	if v, _ := Resolve(g2, a2); v != 100 {
		t.Errorf("expected g2 a=100, got %d", v)
	}
}
