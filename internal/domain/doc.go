// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (emoji.go, message.go, guild.go, errors.go)
// with shared types. No implementation code beyond small value helpers - just contracts.
package domain
