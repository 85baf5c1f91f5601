// Package discord adapts discordgo to the report service: it reads guild
// catalogs and channel history over REST and serves the /emoji_ranking slash
// command together with its legacy text form.
package discord
