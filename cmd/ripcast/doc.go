// Command ripcast is the CLI for the ripcast daemon: it submits extraction
// jobs, follows their event streams, and inspects daemon status and history.
// The daemon itself runs via `ripcast serve` or the ripcastd binary.
package main
