// Package chatfmt provides small chat formatting helpers:
//   - HTML builders safe for Telegram ParseMode="HTML" (auto escaping)
//   - Rune-aware truncation for backend message size limits
//   - Pretty-printed value blocks and compact durations for progress lines
//
// Design goals:
//   - Safe by default (escaped unless explicitly marked Raw)
//   - Deterministic output so progress edits stay diff-stable
package chatfmt
