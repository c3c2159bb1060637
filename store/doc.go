// Package store persists rewritten modules.
//
// A Unit is keyed by the SHA-256 of the input module and the rewritten
// function's name, and named "rewritten-<uuid>" so every rewrite lands in
// a distinct place. Three implementations are provided:
//
//	Memory - process-local map
//	File   - <name>.wasm plus <name>.yaml metadata in a directory
//	SQLite - one table in a WAL-mode database
package store
