// Package ratelimit bounds request volume per client identity with sliding
// windows: one loose counter for all API calls and one strict counter for job
// creation, with a progressive delay between the burst threshold and the hard
// cap. Health endpoints are expected to bypass the limiter entirely.
package ratelimit
