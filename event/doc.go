// Package event provides an explicitly constructed in-process event bus.
//
// Subscribers register typed handlers for a Topic. Pre events (Kind.IsPre) are
// delivered synchronously in registration order and the first handler error
// vetoes the triggering operation. Post events are notifications: synchronous
// handlers run in registration order with their errors logged, asynchronous
// handlers are submitted to a worker pool.
package event
