// Package notifier provides a blocking, goroutine-safe facade over a chat
// session that lives on a background worker goroutine.
//
// # Concurrency model
//
// The worker owns the transport.Session exclusively; chat-protocol code never
// runs on a caller's goroutine. Every operation is a (submit closure, await
// result with timeout) pair over a channel; that pair is the only
// cross-goroutine primitive in the package. Shutdown cancels the worker's
// context, so in-flight calls observe cancellation at their next suspension
// point and scheduled deletions are dropped.
//
// # Failure semantics
//
// Init errors (no token, bad credential, ready timeout, unresolvable channel)
// leave the client uninitialized and safely retryable. After a successful
// Init, operations never retry on their own: a vanished message degrades an
// edit into a fresh send, everything else is surfaced to the caller.
package notifier
