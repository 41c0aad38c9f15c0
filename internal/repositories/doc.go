// Package repositories implements the record store adapter over a [store.Store].
//
// [MusicRepository] projects the two record kinds of the shared collection into
// one owner's list of [models.MergedMusicView] and back. Duplicate checks are
// scans taken before any write, so concurrent writers can both pass them and
// insert the same external id; the store is expected to tolerate that.
//
// Key Implementations:
//   - [MusicRepository] : list, create, update, delete and bulk import of entries
//   - [OwnerScope] : a repository bound to one owner, used as an in-process cache backend
package repositories
