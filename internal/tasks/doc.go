// Package tasks runs multi-step music list operations with real-time progress reporting.
//
// # Operations
//
// [Engine] wraps a [cache.Controller] and the external services:
//
//  1. [Engine.Enrich] : resolve titles for ids on niconico
//     - worker pool bounded by [EnrichOpts.NumWorkers]
//     - requests throttled with a token bucket
//     - per-id failures are recorded and never abort the batch
//
//  2. [Engine.Import] : enrich rows missing a title, then bulk import the rest
//
//  3. [Engine.AutoRegister] : sample non-skipped videos and submit a registration job
//     - returns once the job is accepted; completion arrives as a notification
//
//  4. [Engine.Export] : write the filtered list to a file
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
