// Package log provides simple leveled logging for netwrench.
//
// Output is colored with ANSI escape codes and prefixed with the level
// (DBG/INF/WRN/ERR). Debug messages are shown only when verbose mode is
// enabled via SetVerbose. Errors always go to stderr; commands that emit
// machine-readable output on stdout can route everything to stderr with
// SetForceStdErr.
package log
