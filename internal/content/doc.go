// Package content holds the built static site that the server serves.
//
// A [Snapshot] is an immutable filesystem plus metadata. The [Manager]
// keeps the active one behind an atomic pointer so request handlers never
// lock. Snapshots come from the copy embedded in the binary ([FromFS]) or a
// build directory on disk ([LoadDir]); the [Watcher] re-reads that
// directory and swaps in a new snapshot when the files change, after
// [ValidateSnapshot] has accepted it.
package content
