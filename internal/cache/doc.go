// Package cache holds the client-side copy of one user's music list.
//
// [Controller] applies confirm-then-patch updates: every mutation is sent to a
// [Backend] first and the cached list is patched from the confirmed result, using
// the ids the backend assigned. A failed call leaves the list untouched. Only
// [Controller.Sync] reloads the whole list.
//
// Filtering ([Query]), paging ([Controller.Page]) and sampling for
// auto-registration ([Controller.Sample]) read the cached list and never the backend.
package cache
