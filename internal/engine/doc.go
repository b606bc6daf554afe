// ABOUTME: Package documentation for the write pipeline
// ABOUTME: Explains the ordering contract between journal, commit and notify

// Package engine implements the transactional envelope every domain
// write executes in.
//
// # The contract
//
// A write mutates domain rows, allocates a tenant version from the
// shared oracle, journals the post-state at that version, commits, and
// only then publishes the version. The ordering matters twice over:
//
//   - Allocating before commit puts the journal row and the domain rows
//     in the same local transaction, so "change happened iff the journal
//     records it" needs no two-phase commit.
//   - Publishing after commit means a client that sees version v on its
//     stream will find v in a delta pull. Publishing before commit was
//     tried and produced a visible race; it is forbidden.
//
// A request that mutates several entities atomically journals several
// rows sharing one version and publishes one notification.
//
// # Failure semantics
//
// Everything before commit rolls back as a unit. An oracle failure
// surfaces as ErrOracleUnavailable; the counter may or may not have
// advanced, leaving at worst a version gap that clients already
// tolerate. A commit failure publishes nothing. A publish failure after
// a successful commit is logged and swallowed — the journal is the
// source of truth and clients re-pull by since.
package engine
