// Package logx is trainbot's thin structured-logging layer over zerolog:
// readable console output with a short caller, optional JSON file sink, and
// runtime sink swapping driven by config hot reload. The zero Logger is a
// safe no-op, so components can take one without nil checks.
package logx
