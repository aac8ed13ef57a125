// Package sheets implements table.Client over the Google Sheets v4 API.
//
// All worksheets opened through one Opener share a single request limiter,
// since the Sheets quota is counted per project per minute.
package sheets
