// Package stores provides the durable persistence layer: ignition state
// records, the append-only operation log and encrypted credential records,
// all backed by a single SQLite database in WAL mode with schema
// migrations embedded in the binary.
package stores
