// Package store is the key-value collaborator behind the record store adapter.
//
// Both record kinds live in one collection keyed by (id, kind). Reads are full
// scans narrowed by a [Filter]; there is no pagination and no server-side join.
// The store never enforces external id uniqueness: duplicate checks belong to the
// caller and race against concurrent writers.
//
// Backends:
//   - [SQLiteStore] : one "records" table created by the embedded migrations
//   - [RedisStore] : one JSON value per record key, scanned with SCAN + MGET
//
// [Open] picks the backend from the [store] section of the config. Every backend
// failure wraps [shared.ErrStoreUnavailable]; transient ones are retried first.
package store
