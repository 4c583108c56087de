// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

/*
Package region implements a thread-safe region (bump) allocator for many
small, heterogeneous allocations that share one owner's lifetime and are
reset or destroyed together. The region never frees an allocation on its
own; it only ever gives back everything at once, at Reset or Destroy.

Layering

The package is built from three layers, leaves first:

  - internal/shard.Block: one contiguous, append-only chunk of storage.
  - internal/shard.Shard: a single-writer bump allocator chaining Blocks,
    owned by exactly one Region contributor at a time.
  - Region: the public, thread-safe arena — a lock-free registry of Shards,
    a monotonic lifecycle id, an optional AllocationPolicy, and the
    lifecycle operations (construct / allocate / add cleanup / reset /
    destroy).

Fast path

Bind a *Local once per goroutine via Region.Pin and reuse it for repeated
allocations to skip the per-call pool borrow/return; see local.go.

Testing

Concurrency-sensitive tests in this package follow the N-goroutine
producer-style scenarios common in this codebase's ancestry and are meant
to be exercised with `go test -race`.
*/
package region
