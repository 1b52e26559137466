// Package lock implements crash-tolerant mutual exclusion on top of a shared
// row store, without a lock service or consensus library.
//
// A lock is a single row whose value is a token: the holder's identity plus
// the wall-clock time the holder last proved liveness. Claiming and releasing
// are compare-and-swap operations against the exact prior value, so two
// replicas racing for the same row cannot both win.
//
// # Protocol
//
// A replica may claim a lock row when one of these holds:
//
//   - the row is absent or empty (nobody holds the lock)
//   - the row carries the replica's own identity (restart after a crash)
//   - the token is older than the staleness threshold (the holder died)
//   - the token cannot be parsed (treated as stale)
//
// While held, a heartbeat goroutine refreshes the token's timestamp so live
// holders are never mistaken for dead ones. The heartbeat swaps the last
// written token for a fresh one; if that swap ever fails the lock was stolen
// and the heartbeat stops rather than fight the new holder.
//
// Release joins the heartbeat goroutine first, then deletes the row only if
// it still carries this replica's identity. Release failures are logged and
// swallowed: a leaked row is reclaimed by the staleness protocol.
//
// The store behind RowStore decides durability. Both implementations in
// internal/store back it with a relational table.
package lock
