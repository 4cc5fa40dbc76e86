// Package query turns chained builder calls into parameterized SQL and
// executes it through a pooled connection.
//
// A Builder owns one Statement. Clause methods mutate it and return the
// builder for chaining; nothing touches the database until a terminal
// call (Find, First, Paginate, Insert, Update, Delete). Row-returning
// and mutating terminals consume the builder. Aggregates (Count, Sum,
// Avg, Exists) render against derived copies and leave it reusable.
//
// Each statement is rendered, dispatched and awaited sequentially by
// its caller; concurrency comes from callers issuing statements from
// separate goroutines over the shared pool. The pool holds a fixed
// number of connections and queues waiters without bound: if every
// connection is held and none released, later statements wait
// indefinitely. That starvation hazard is documented here, not solved.
// No ordering is guaranteed across concurrently issued statements;
// callers needing one must serialize or use a transaction, whose
// dedicated connection no other statement can share while it is open.
package query
