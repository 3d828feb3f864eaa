// Package permcache caches authorization decisions in two tiers: a
// bounded in-process LRU and a shared Redis keyspace, both in front of
// the authoritative permission store.
//
// Reads fall through L1 -> L2 -> store; either cache tier failing is a
// miss, while a store failure refuses the request. Writes never go
// through this package: the permissions.Manager mutates the store and
// then calls back into Service.InvalidateUser or InvalidateDrive, which
// purge the shared tier, purge the local tier, and broadcast an event so
// peer processes purge theirs.
package permcache
