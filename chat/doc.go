// Package chat connects the bot to Twitch IRC.
//
// Client joins the configured channels, converts every private message into
// a bot.Message (moderator flag from the "mod" tag or badge, self-echo by
// login name) and hands it to a Handler. Replies go out through Say. The IRC
// token can be swapped at runtime by the OAuth refresher; the new token is
// used on the next (re)connect.
package chat
