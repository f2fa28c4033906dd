// Package engine executes compiled graphs as sessions.
//
// Execute resolves a graph from a spec (compiled through an LRU cache keyed
// by content hash), a cached key, or a prebuilt CompiledGraph. It then walks
// the graph serially from the entry node with a FIFO frontier: a node's
// conditional edge picks the single next node, otherwise all plain
// successors are enqueued in declaration order. The walk ends when the
// frontier is empty or the finish node has run.
//
// Node failures that no error handler recovers fail the session. They are
// reported through Result.Status and Result.Error rather than as errors.
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.Registry = reg
//	    o.Checkpoints = checkpoint.NewMemory()
//	})
//	res, err := eng.Execute(ctx, engine.Request{Spec: &spec, Input: input})
package engine
