// Package api exposes the authorization service over HTTP: decision
// reads served through the cache, permission mutations routed through
// the manager, and cache introspection.
package api
