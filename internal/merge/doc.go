// Package merge reconciles a local snapshot with the shared remote document.
//
// All functions are pure: they never perform I/O, never panic on malformed
// input and always return a usable snapshot. Two entry points exist:
//
//   - ForPush is the write path. It runs immediately before a push and its
//     result is written back to the remote store.
//   - OnPull is the read path. It runs on every poll and its result is only
//     adopted locally.
//
// Ratings are resolved per (judgeId, teamId) by lastUpdated, ties going to
// the local side. Rosters follow role-specific authority rules: organizers
// own the entry and judge lists, everyone else defers to the remote copy.
// Tombstoned ids are dropped from every output.
package merge
