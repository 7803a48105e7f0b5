// Package engine runs SQL against catalog databases on a fixed pool of
// worker goroutines.
//
// The SQLite driver requires that a connection is used by one goroutine at a
// time. Callers, on the other hand, run anywhere and must not be blocked by
// a slow statement. The engine bridges the two:
//
//  1. Submit queues a Request and returns a Pending handle at once.
//  2. Exactly one worker dequeues the task. Each worker owns a
//     store.Registry, so it reuses its own pinned connection per database
//     and never shares it.
//  3. The worker runs the statement under a deadline (EffectiveLimit). When
//     the deadline fires the driver interrupts the statement in place and
//     the worker reports a *QueryInterrupted; the connection stays usable.
//  4. Rows are assembled into Results with the row-cap rule of assemble.
//  5. The Pending handle is completed; Wait returns the result or error.
//
// Once dispatched a request always runs to completion or to its deadline.
// A caller that stops waiting does not cancel it.
package engine
