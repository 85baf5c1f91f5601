// Package ranking implements the emoji usage counting pass and the leaderboard ranking.
//
// A Registry holds one counter per catalog emoji. Count applies the author and bot filters to
// a batch of messages and may be called once per channel; registries built from the same
// catalog can be merged by addition. Rank sorts, truncates and assigns tie-aware ranks.
// Everything here is synchronous and free of I/O.
package ranking
