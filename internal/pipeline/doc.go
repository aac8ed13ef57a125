// Package pipeline runs one daily reconciliation end to end.
//
// A run moves through the states
//
//	idle → aggregating → looking_up → computing → reconciling → done
//
// and ends in failed when the source cannot be read, every record is
// malformed, a table reports a fatal error, the statistics table cannot be
// opened, or the context is cancelled. Quota and transient table errors are
// absorbed by the table retrier and never end a run.
//
// Margin lookups are strictly sequential: one group at a time, one id at a
// time, with a pause between groups to stay under the per-minute quota.
package pipeline
