// Package services drives the external programs that do the heavy lifting.
//
// [YtDlp] implements [Fetcher] (playlist expansion, metadata, audio download) on top of yt-dlp,
// falling back to youtube-dl. [Ffmpeg] implements [Transcoder] (stream-copy clip, two-pass
// loudnorm, libopus encode).
//
// # Classification
//
// Every failure leaving this package is a [*Failure] tagged with an [Outcome]. Raw program output
// is interpreted in exactly one place per capability (classifyFetch, classifyRender); callers
// switch on [OutcomeOf] and never inspect stderr themselves.
//   - [Unavailable] : the fetcher reported a private or unavailable item
//   - [Fatal] : the executable is missing or the context was cancelled
//   - [Transient] : anything else
//
// Command execution goes through [Executor] so tests can script program behavior.
package services
