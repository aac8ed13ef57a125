// Package database opens the PostgreSQL pool that backs the run history archive.
package database
