// Package report turns raw command arguments into a typed report request and
// renders ranked entries into a presentation-neutral embed.
package report
