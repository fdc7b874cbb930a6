// Package database builds pgx connection pools from config.
//
// The relay keeps all presence state in memory; PostgreSQL is only used by the
// optional audit trail.
package database
