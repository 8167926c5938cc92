// Package store is the ledger's relational engine: an in-memory SQLite
// database holding vendors and invoices.
//
// Every mutation runs as one transaction followed by a full export of the
// database image through package codec and a save to the local cache. A
// Store serializes mutations with a single writer lock, so an older export
// can never overwrite a newer one in the cache.
//
// # Persistence Failures
//
// If the local save fails, the mutation has still been applied in memory
// and the returned error satisfies localcache.IsLocalStorage. The in-memory
// database stays authoritative and the next mutation saves again.
//
// # Initialization
//
// Open picks its starting state in this order:
//   - an explicit snapshot (WithSnapshot), typically from a remote restore
//   - the blob in the local cache
//   - an empty schema, saved immediately
//
// A corrupt snapshot or cache blob is skipped and reported through
// InitWarning rather than failing Open.
package store
