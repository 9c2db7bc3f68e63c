// Package repositories implements the SQLite-backed completion store.
//
// [CompletionStore] is the sole source of truth for resumability. It tracks one row per item
// (state, title, failure reason, attempt counter) and one row per planned segment (time range,
// assigned output path, rendered flag). Item state only moves forward; [CompletionStore.MarkSegmentDone]
// promotes an item to done in the same transaction that records its last outstanding segment.
//
// All calls serialize on one mutex and transactions that hit SQLITE_BUSY are retried with a short
// exponential backoff.
package repositories
