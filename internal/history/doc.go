// Package history archives terminal jobs in a SQLite database under the state
// directory. The archive feeds the operator surfaces (API history endpoint,
// CLI history table); it never feeds live state back into the registry.
package history
