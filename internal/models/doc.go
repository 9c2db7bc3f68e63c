// Package models defines the domain entities shared by the store, the pipeline and the CLI.
//
//   - [Item] : a playlist entry and its completion [State]
//   - [Segment] : one titled time range of an item, destined for one output file
//   - [Metadata] : what the fetcher reports about a remote item
//   - [Summary] : per-state counts for status output
//
// Item state only moves forward: [StatePending] to [StateFetched] to [StateDone], or from any
// non-done state to [StateFailed].
package models
