// Package actor provides the two concurrency building blocks the router is
// made of: an owner goroutine that serializes all access to a piece of
// state ([State]), and a task scheduler that tracks long-running goroutines
// so shutdown can wait for them ([Scheduler]).
//
// # Owned state
//
// A [State] runs every operation on one goroutine, in submission order.
// Callers never touch the data directly:
//
//	st := actor.NewState(ctx, &table{})
//	_ = st.Process(func(t *table) { t.add("prices", "node-b") })
//	members, _ := actor.Read(st, func(t *table) []string { return t.members("prices") })
//
// Operations must not block and must not call back into the same State.
//
// # Scheduling
//
// [Scheduler.Schedule] starts a task unless the scheduler's context is
// already done; [Scheduler.Wait] blocks until every started task returned.
// Panics inside tasks are recovered and logged.
package actor
