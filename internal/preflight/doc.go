// Package preflight provides readiness checks for the executables and directories a run
// depends on.
//
// The run command calls RunAll before taking the cache lock and refuses to start when any check
// fails. The doctor command prints the same results as a table.
package preflight
