// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package region

import (
	"github.com/momentics/region/internal/arenaerr"
	"github.com/momentics/region/internal/sysalloc"
)

// AllocationPolicy configures a Region's growth bounds, block allocator
// hooks, and telemetry sink. It is validated once at construction and is
// immutable for the lifetime of the Region: there is no exported way to
// mutate a policy already attached to an Active region, resolving the
// collector-install-time race by construction rather than by locking.
type AllocationPolicy struct {
	// StartBlockSize is the size of a shard's very first block. Must be a
	// multiple of 8; a value <= 0 selects the 4 KiB default.
	StartBlockSize int
	// MaxBlockSize caps geometric block growth. Must be a multiple of 8
	// and >= StartBlockSize; a value <= 0 selects the 1 MiB default.
	MaxBlockSize int
	// BlockAlloc obtains a new block of at least the requested size. Nil
	// falls back to internal/sysalloc's platform default.
	BlockAlloc func(size int) ([]byte, error)
	// BlockDealloc releases memory obtained from BlockAlloc (or the
	// default). Nil falls back to internal/sysalloc's platform default.
	BlockDealloc func(buf []byte)
	// Metrics is the optional lifecycle event sink. Nil means no
	// telemetry is recorded. Whether it receives OnAlloc notifications is
	// controlled by the recordAllocs argument to InitializeWithPolicy, not
	// by this struct.
	Metrics MetricsCollector
}

const defaultStartBlockSize = 4 << 10 // 4 KiB, "small kilobytes range"
const defaultMaxBlockSize = 1 << 20   // 1 MiB

func defaultPolicy() AllocationPolicy {
	return AllocationPolicy{
		StartBlockSize: defaultStartBlockSize,
		MaxBlockSize:   defaultMaxBlockSize,
	}
}

// validatePolicy checks the invariants spec.md §4.4 requires of a policy and
// fills in the default allocator hooks. It never mutates a caller-visible
// AllocationPolicy in place; it returns a corrected copy.
func validatePolicy(p AllocationPolicy) (AllocationPolicy, error) {
	if p.StartBlockSize <= 0 {
		p.StartBlockSize = defaultStartBlockSize
	}
	if p.MaxBlockSize <= 0 {
		p.MaxBlockSize = defaultMaxBlockSize
	}
	if p.StartBlockSize%8 != 0 {
		return p, arenaerr.New(arenaerr.CodeInvalidArgument, "StartBlockSize must be a multiple of 8").
			With("start_block_size", p.StartBlockSize)
	}
	if p.MaxBlockSize%8 != 0 {
		return p, arenaerr.New(arenaerr.CodeInvalidArgument, "MaxBlockSize must be a multiple of 8").
			With("max_block_size", p.MaxBlockSize)
	}
	if p.StartBlockSize > p.MaxBlockSize {
		return p, arenaerr.New(arenaerr.CodeInvalidArgument, "StartBlockSize must be <= MaxBlockSize").
			With("start_block_size", p.StartBlockSize).
			With("max_block_size", p.MaxBlockSize)
	}
	if p.BlockAlloc == nil {
		p.BlockAlloc = sysalloc.Alloc
	}
	if p.BlockDealloc == nil {
		p.BlockDealloc = sysalloc.Dealloc
	}
	return p, nil
}

// TypeDescriptor is an opaque handle the region forwards to a
// MetricsCollector's OnAlloc without interpreting it. Callers that want
// typed accounting pass a stable value (a *reflect.rtype, a string, an
// integer enum — the region does not care).
type TypeDescriptor any

// MetricsCollector receives lifecycle notifications from a Region whose
// policy has a non-nil Metrics: OnReset and OnDestroy always, OnAlloc only
// when the Region was constructed with recordAllocs=true. Implementations
// must not block and must not call back into the Region that invokes them.
type MetricsCollector interface {
	OnAlloc(typ TypeDescriptor, n int)
	OnReset(bytesFreed uint64)
	OnDestroy(bytesFreed uint64)
}
