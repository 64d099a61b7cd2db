// Package validate sanitizes untrusted request input before a job is created.
//
// Every entry point returns the canonical value or a FieldError naming the
// rejected field and a machine-readable reason; nothing here panics or leaks
// past the boundary. The format whitelist is the sole anti-injection defense
// for the format field, so it must stay a closed enumeration.
package validate
