// Package store defines the persistence contract for training metrics. Drivers
// live in internal/storage/postgres and internal/storage/sqlite; this package
// must not import database drivers or concrete clients.
package store
