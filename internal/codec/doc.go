// Package codec converts the whole ledger database to and from a single
// self-contained byte blob.
//
// The embedded database is SQLite held entirely in memory. Export uses
// sqlite3_serialize to copy the database image; Load deserializes an image
// into a scratch connection, checks it, and copies it page by page into a
// fresh writable in-memory database through the online backup API.
//
// # Integrity checks
//
// A blob handed to Load is rejected with a CorruptSnapshotError when:
//   - it does not start with the SQLite header magic
//   - PRAGMA quick_check does not report "ok"
//   - its application_id belongs to another application
//   - its user_version is newer than this build understands
//
// # Schema versions
//
//   - 0: layout written by the first release (no application_id)
//   - 1: application_id stamped, index on invoices(vendorId)
//
// Older images are migrated in memory on Load. The codec never touches
// durable storage.
package codec
