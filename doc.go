// Package surgecache is a resilience layer in front of a relational store.
//
// The read side serves entity lookups cache-aside with three selectable
// strategies:
//   - PassThrough: inline load on miss, tombstones for confirmed-absent ids
//     (penetration protection, no stampede protection).
//   - MutexGuarded: a distributed try-lock serializes the rebuild so the
//     backing store is hit once per miss storm.
//   - LogicalExpire: entries carry an application-level expiry and are never
//     evicted by the store; expired reads return the stale value immediately
//     and trigger at most one asynchronous rebuild per key.
//
// The write side (package seckill) arbitrates a limited-inventory flash sale:
// an atomic stock-and-duplicate admission check, collision-free order ids,
// and an idempotent durable commit.
//
// Components:
//   - Provider: TTL-capable byte store shared across replicas (Redis).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - lock.Mutex: token-owned advisory lock with compare-and-delete release.
//   - Rebuilder: bounded worker pool for logical-expiry refreshes.
//
// Keys:
//
//	<ns>:<id>       - cache entries (value, tombstone, or logical wrapper)
//	lock:<ns>:<id>  - rebuild locks
package surgecache
