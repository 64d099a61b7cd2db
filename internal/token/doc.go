// Package token implements one-shot capability tokens for artifact retrieval.
//
// A token is a high-entropy bearer value bound to exactly one filename and an
// absolute expiry. The service stores only the token's SHA-256 hash; the
// check-and-mark on first successful validation is atomic under the service
// lock, so a token is accepted at most once even under concurrent attempts.
package token
