// Package models defines the records and views of the niconico mylist assistant.
//
// Two record kinds share one physical table and are told apart by [Kind]:
//
//   - [CommonMusicRecord] : shared metadata for one external video id (kind "music")
//   - [UserSettingRecord] : one owner's favorite/skip/memo for an external video id (kind "user")
//
// [Record] is the physical row both kinds are stored as. [Merge] left-joins the
// common records with one owner's settings into the client-facing [MergedMusicView].
//
// The remaining types are request and response payloads shared by the API server,
// the HTTP client and the CLI: [MusicInput], [CreatedIDs], [BulkImportItem],
// [BulkImportResult], [RegisterRequest] and [Notification].
package models
