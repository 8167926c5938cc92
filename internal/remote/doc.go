// Package remote is the per-account backup slot: one record holding the
// latest full snapshot as base64 plus a timestamp in epoch milliseconds.
//
// Writes overwrite the record. There is no history and no merge.
//
// Two Slot implementations are provided. MemorySlot keeps records in
// process and is used by tests and offline sessions. HTTPSlot talks to a
// REST endpoint laid out like a realtime-database tree:
//
//	GET    {base}/users/{account}/sqlite_backup.json
//	PUT    {base}/users/{account}/sqlite_backup.json
//	DELETE {base}/users/{account}/sqlite_backup.json
//
// A 404 response or a JSON null body means the slot is empty.
package remote
