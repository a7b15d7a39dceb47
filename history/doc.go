// Package history holds per-channel chat history used as narrative context.
//
// Every observed chat line is classified (plain chat or a command token),
// appended to an in-memory, insertion-ordered sequence for its channel and
// mirrored to durable storage through a Mirror. Commands without a narrative
// payload are recorded only on their first occurrence per channel; the
// seen-set lives in its own structure (SeenCommands) so the reset policy can
// be chosen independently of the history itself.
//
// BuildWindow renders the tail of a channel's event history into the compact
// text block handed to the generation prompt.
package history
