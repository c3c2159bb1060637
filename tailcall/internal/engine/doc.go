// Package engine orchestrates the tail-call rewrite.
//
// Transformation pipeline:
//  1. Parse module, select functions with the (x, acc) -> acc shape
//  2. Decode and normalize each body into a linked instruction stream
//  3. Locate a self call whose staged result is returned unchanged
//  4. Rewrite the site, repeat until no site remains
//  5. Compact changed bodies, encode output
package engine
