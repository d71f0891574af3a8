// Package output renders run results: the end-of-run report in text, JSON or
// YAML, the advisory PASS/PARTIAL/FAIL verdict, and a one-line live progress
// display.
package output
