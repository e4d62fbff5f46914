// Package database opens the TimescaleDB connection pool used by the tick
// store. Schema and queries live with the store in internal/writer.
package database
