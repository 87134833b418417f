// Package history persists a best-effort record of training runs and their
// flushed metrics to SQLite. Disabled storage is represented by a nil *Store,
// which every caller treats as "history off".
package history
