// Package extractor invokes the external extraction utility and translates
// its line-oriented progress output into job registry updates.
//
// The utility is modeled purely by its CLI contract: a fixed argument vector
// (source URL, extract flag, audio format, output template, newline-progress
// flag) executed without a shell, stdout consumed line by line, and a non-zero
// exit surfaced as a job failure carrying the process's own diagnostics. The
// runner detaches every extraction from the originating request and never lets
// an error or panic escape into the HTTP path.
package extractor
