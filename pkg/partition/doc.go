// Package partition provisions isolated per-tenant data partitions. Each
// workspace gets its own SQLite database file, named deterministically
// from the workspace slug, created with a base schema and dropped whole
// during compensation.
package partition
