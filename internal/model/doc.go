// Package model defines the data types handed between pipeline stages.
//
// Conventions:
//   - Money: shopspring decimal, never float64
//   - Rows and columns: 1-based, as the remote tables address them
//   - Run dates: calendar days in the configured timezone, keyed as YYYY-MM-DD
package model
