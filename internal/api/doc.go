// Package api defines the wire types shared by the daemon's HTTP surface and
// the CLI, plus the HTTP client the CLI uses to talk to a running daemon.
package api
