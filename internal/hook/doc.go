// Package hook provides named extension points with phased, priority-ordered
// handler pipelines.
//
// External code registers handlers against a hook name. Each handler belongs
// to one of three phases, run in order: pre, main, post. Within a phase,
// handlers run in ascending priority order; equal priorities keep their
// registration order.
//
// # Handlers and Continuations
//
// A handler does not return its result. It receives a Next continuation and
// must call it exactly once to hand control to the next handler:
//
//	func audit(call *hook.Call, next hook.Next) {
//	    user := call.Args[0].(string)
//	    next(nil, "audited:"+user)
//	}
//
// The value passed to next becomes call.Prev for the following handler. The
// last handler's value is delivered to the pipeline callback. Passing a
// non-nil error stops the pipeline: no further handler runs, in this phase or
// any later phase, and the callback receives that exact error.
//
// Handlers may continue asynchronously, for example from a goroutine:
//
//	func fetch(call *hook.Call, next hook.Next) {
//	    go func() {
//	        v, err := load(call.Args[0].(string))
//	        next(err, v)
//	    }()
//	}
//
// There is no timeout. A handler that never calls next stalls its pipeline
// forever. Use Engine.Run with a context deadline to stop waiting on one.
//
// # Registration
//
// A Spec describes what is registered:
//
//	reg := hook.NewRegistry()
//	reg.Register("save", hook.Single(validate), 0)
//	reg.RegisterPhase(hook.PhasePre, "save", hook.Many(lock, audit), 10)
//	reg.Register("save", hook.Bundle{
//	    Pre:  hook.Single(lock),
//	    Main: hook.Single(write),
//	    Post: hook.Single(unlock),
//	}, 0)
//
// Registration is additive. Registering the same handler twice runs it twice.
//
// # Execution
//
//	eng := hook.NewEngine(reg, hook.WithLogger(logger))
//	err := eng.Execute("save", []any{"doc.txt"}, nil, func(err error, result any) {
//	    // ...
//	})
//
// Execute returns an error only for invalid input (ErrInvalidPhase). Handler
// errors always arrive through the callback.
//
// # Thread Safety
//
// Registry and Engine are safe for concurrent use. Each execution snapshots
// the matching records when its stack is built, so registrations made while a
// pipeline is in flight are not visible to it.
package hook
