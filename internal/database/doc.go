// Package database stores finished runs in a local SQLite file.
//
// The store is an archive for the history command. A run never reads it
// back while it is executing.
package database
