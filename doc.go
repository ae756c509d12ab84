// Package traced provides an incremental, lazy dependency-graph evaluator
// with spreadsheet semantics: writing a source attribute marks its transitive
// dependents stale, and recomputation is deferred until a dependent is next
// read.
//
// # Overview
//
// Traced organizes code around three core concepts:
//
//  1. Attributes: named nodes holding either a raw value (sources) or a
//     function of other attributes (derived)
//  2. Graphs: owning registries that cache values and track the edges
//     between attributes
//  3. Evaluation contexts: read-capable handles passed to compute functions
//     so dependencies are discovered by observing actual reads
//
// # Basic Usage
//
// Declare attributes on a graph:
//
//	g := traced.NewGraph()
//
//	a := traced.Source(g, 2, traced.WithName("a"))
//	b := traced.Source(g, 3, traced.WithName("b"))
//
//	sum := traced.Derived(g, func(ctx *traced.EvalCtx) (int, error) {
//	    av, err := traced.Read(ctx, a)
//	    if err != nil {
//	        return 0, err
//	    }
//	    bv, err := traced.Read(ctx, b)
//	    if err != nil {
//	        return 0, err
//	    }
//	    return av + bv, nil
//	}, traced.WithName("sum"))
//
// Read through the package function or a controller:
//
//	val, err := traced.Resolve(g, sum) // 5, computed now
//	val, err = traced.Resolve(g, sum)  // 5, pure cache hit
//
//	traced.Update(g, a, 10) // sum goes stale, nothing recomputes yet
//	val, err = traced.Resolve(g, sum) // 13, recomputed on demand
//
// # Dynamic Dependencies
//
// A derived attribute's dependency set is re-traced on every recomputation,
// so a compute function that branches only depends on what it actually read
// this time:
//
//	pick := traced.Derived(g, func(ctx *traced.EvalCtx) (int, error) {
//	    flag, _ := traced.Read(ctx, useA)
//	    if flag {
//	        return traced.Read(ctx, a)
//	    }
//	    return traced.Read(ctx, b)
//	})
//
// After an evaluation that read b, a write to a no longer invalidates pick.
//
// # Errors
//
// Reads fail with *CycleError when a compute function reads an attribute
// currently being computed on the same stack, and with *ComputeError when the
// compute function itself fails. In both cases the node stays stale and the
// graph remains usable; reads retry cleanly. Writing a derived attribute, or
// mutating the graph from inside a compute function, fails with
// *InvalidOperationError.
//
// # Overrides and Subscriptions
//
// A derived attribute can be pinned to a fixed value with Override; while
// pinned its compute function never runs and upstream changes stop at it.
// ClearOverride unpins it and forces recomputation on the next read.
// Subscribe registers callbacks that fire when an attribute's committed value
// actually changes.
//
// # Extensions
//
// Extensions intercept top-level operations middleware-style; see the
// extensions subpackage for logging, metrics and graph-debugging
// implementations.
//
// # Concurrency
//
// Operations on one graph are serialized: a write and the invalidation walk
// it triggers are atomic with respect to reads, and evaluations never
// interleave. Independent graphs are fully isolated and may be used from
// different goroutines.
package traced
