// Package logs reads the daemon log file for the CLI.
//
// LastLines keeps a bounded ring of trailing lines so large logs never load
// fully into memory. Follow polls from a byte offset and hands each complete
// line to a callback until the context ends, restarting from the top when the
// file is truncated or rotated underneath it.
package logs
