// Package permissions holds the authoritative permission model: the
// relational store of drives, pages, memberships and page grants, plus
// the Manager through which every mutation flows. The Manager writes to
// the store first and then awaits the matching cache invalidation, which
// is what gives callers read-after-write consistency within a process.
package permissions
