package traced

import "testing"

func TestControllerGetAndSet(t *testing.T) {
	g := NewGraph()

	a := Source(g, 1, WithName("a"))
	ctl := Accessor(g, a)

	if v, err := ctl.Get(); err != nil || v != 1 {
		t.Fatalf("expected 1, got %d, %v", v, err)
	}
	if err := ctl.Set(8); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := ctl.Get(); err != nil || v != 8 {
		t.Errorf("expected 8, got %d, %v", v, err)
	}
}

func TestControllerPeekDoesNotEvaluate(t *testing.T) {
	g := NewGraph()

	computes := 0
	one := Derived(g, func(ctx *EvalCtx) (int, error) {
		computes++
		return 1, nil
	}, WithName("one"))
	ctl := Accessor(g, one)

	if _, ok := ctl.Peek(); ok {
		t.Error("expected no value before first evaluation")
	}
	if computes != 0 {
		t.Fatalf("peek triggered a compute")
	}

	if _, err := ctl.Get(); err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, ok := ctl.Peek(); !ok || v != 1 {
		t.Errorf("expected peeked 1, got %d, %v", v, ok)
	}
}

func TestControllerStalenessAndVersion(t *testing.T) {
	g := NewGraph()

	a := Source(g, 2, WithName("a"))
	doubled := Derived(g, func(ctx *EvalCtx) (int, error) {
		v, err := Read(ctx, a)
		if err != nil {
			return 0, err
		}
		return v * 2, nil
	}, WithName("doubled"))
	ctl := Accessor(g, doubled)

	if !ctl.IsStale() {
		t.Error("expected derived attribute to start stale")
	}
	if ctl.Version() != 0 {
		t.Errorf("expected version 0 before evaluation, got %d", ctl.Version())
	}

	if _, err := ctl.Get(); err != nil {
		t.Fatalf("get: %v", err)
	}
	if ctl.IsStale() {
		t.Error("expected clean after evaluation")
	}
	v1 := ctl.Version()

	if err := Update(g, a, 3); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !ctl.IsStale() {
		t.Error("expected stale after upstream write")
	}
	if ctl.Version() != v1 {
		t.Error("staling must not move the version, only recomputation does")
	}

	if _, err := ctl.Get(); err != nil {
		t.Fatalf("get: %v", err)
	}
	if ctl.Version() <= v1 {
		t.Errorf("expected version to advance past %d, got %d", v1, ctl.Version())
	}
}

func TestControllerOverrideRoundTrip(t *testing.T) {
	g := NewGraph()

	one := Derived(g, func(ctx *EvalCtx) (int, error) {
		return 1, nil
	}, WithName("one"))
	ctl := Accessor(g, one)

	if err := ctl.Override(5); err != nil {
		t.Fatalf("override: %v", err)
	}
	if !ctl.IsOverridden() {
		t.Error("expected overridden")
	}
	if v, err := ctl.Get(); err != nil || v != 5 {
		t.Errorf("expected 5, got %d, %v", v, err)
	}

	if err := ctl.ClearOverride(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ctl.IsOverridden() {
		t.Error("expected override cleared")
	}
	if v, err := ctl.Get(); err != nil || v != 1 {
		t.Errorf("expected 1, got %d, %v", v, err)
	}
}

func TestAccessorAcrossGraphsPanics(t *testing.T) {
	g1 := NewGraph()
	g2 := NewGraph()

	a := Source(g1, 1, WithName("a"))

	defer func() {
		if recover() == nil {
			t.Error("expected panic building a controller with a foreign handle")
		}
	}()
	Accessor(g2, a)
}

func TestControllerInvalidate(t *testing.T) {
	g := NewGraph()

	calls := 0
	counter := Derived(g, func(ctx *EvalCtx) (int, error) {
		calls++
		return calls, nil
	}, WithName("counter"))
	ctl := Accessor(g, counter)

	if v, _ := ctl.Get(); v != 1 {
		t.Fatalf("expected 1, got %d", v)
	}
	if err := ctl.Invalidate(); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if v, _ := ctl.Get(); v != 2 {
		t.Errorf("expected 2 after invalidate, got %d", v)
	}
}
