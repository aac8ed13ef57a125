// Package reconcile writes daily counts and profits into the statistics table.
//
// Layout of the statistics table:
//   - each order id occupies a pair of rows: its count row, then the row
//     holding the id itself, which receives the profit
//   - dates are columns labelled with the day of month, in header rows
//     optionally marked by an anchor label
//
// Count and profit are two independent remote writes. Each successful write is
// recorded as a Marker so an interrupted run resumes with only the missing
// half.
package reconcile
