// Package table defines the remote table capability the pipeline reads margins
// from and writes statistics into, the error taxonomy its backends report, and
// the retry policy applied to every call.
//
// Backends:
//   - sheets: Google Sheets, rate limited per minute
//   - xlsx: local workbooks, for offline runs and exports
//
// Error kinds:
//   - Quota: rate limit hit; waited out and retried without bound
//   - NotFound: expected absence; never retried
//   - Transient: network or timeout; retried a bounded number of times
//   - Fatal: auth or configuration; aborts the run
package table
