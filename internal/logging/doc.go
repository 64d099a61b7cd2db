// Package logging provides the slog construction helpers shared by the daemon
// and CLI: console and JSON handlers, level parsing, multi-writer outputs, and
// attribute shorthands. The console format is chosen automatically when stdout
// is a terminal.
package logging
