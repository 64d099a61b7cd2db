// Package daemon hosts the long-running ripcast process: the HTTP API, the
// job registry and its event streams, the one-shot retrieval gateway, and the
// background sweepers for jobs, tokens, rate-limit windows, and artifacts.
// A file lock enforces a single daemon instance per state directory.
package daemon
