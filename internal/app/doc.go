// Package app provides the application service layer.
//
// Orchestrates the report use case: per-guild rate limiting, settings lookup, argument parsing,
// concurrent history fetching, counting, ranking and rendering. Sits between the Discord and
// HTTP surfaces and the message source. Depends on interfaces, not concrete adapters.
package app
