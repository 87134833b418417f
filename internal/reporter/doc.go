// Package reporter turns training-loop lifecycle events into chat messages.
//
// Each logical progress line ("train-progress", "predict-progress") occupies
// at most one live message: the reporter caches the backend message id per
// line and edits it in place, falling back to a fresh send when the message
// vanished. The cache is an explicit per-key state record (see tracker), not
// scattered instance fields, so the edit/send-fallback logic stays auditable.
//
// Hooks never fail the training loop: notification errors after a successful
// notifier Init are logged and swallowed.
package reporter
