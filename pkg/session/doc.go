// Package session holds the live editing state for one ticket form: the
// current value map, dirty tracking, and the debounced autosave task. A
// session owns its values exclusively; the compiled schema it evaluates
// against is shared read-only with every other session on that schema
// version.
//
// Updates are serialized by the session, so callers may invoke Update
// from any goroutine. Every successful Update returns a full recomputed
// snapshot, never a partial diff.
package session
