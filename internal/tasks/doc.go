// Package tasks runs the clip pipeline with real-time progress reporting.
//
// # Stages
//
// [Engine.Run] wires four stages together with unbuffered channels:
//
//  1. Lister : resolves playlist ids into item ids and skips items the store marks done or failed
//  2. Fetch : one worker; fetches metadata and audio into a raw file, retrying transient failures
//  3. Segment : one worker; plans segments from the description (or one whole-item segment) and
//     emits a render job per segment not yet done
//  4. Render : a pool of workers; clips, normalizes and encodes each segment into the output dir
//
// Because every hand-off blocks until the next stage is ready, at most Workers+2 raw files exist
// at once.
//
// # Resumability
//
// Progress lives in the completion store ([Store]), not in memory. Segment plans and output paths
// are recorded before the first render, and each segment is marked done only after its output was
// renamed into place. A crashed or interrupted run is resumed by running again.
//
// # Failures
//
// Errors from [services.Fetcher] and [services.Transcoder] are classified by [services.OutcomeOf]:
//   - Unavailable : the item is marked permanently failed
//   - Transient : retried with exponential backoff; the item or segment stays pending once retries run out
//   - Fatal : stops the run and is returned from [Engine.Run]
//
// A segment that cannot be rendered leaves a zero-byte placeholder next to where the output would
// have gone.
//
// # Progress Reporting
//
// [ProgressUpdate] values are sent with select and default, so a slow reader never blocks the run.
package tasks
