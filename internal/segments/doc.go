// Package segments detects titled time ranges in free-form description text.
//
// A description is scanned line by line against an ordered list of [Rule] values. The first rule
// that captures both a "time" and a "title" group wins for that line; lines no rule matches are
// ignored. Consecutive matches become segment boundaries, the last segment running to the end of
// the stream. Unparseable text is never an error, it simply yields no segments.
package segments
