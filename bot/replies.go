package bot

import (
	"fmt"
	"strings"

	"github.com/onnwee/chronicle-bot/history"
)

// Command tokens, without the prefix.
const (
	CmdContext      = "context"
	CmdResetContext = "reset_context"
	CmdHelp         = "help"
	CmdAddUser      = "add_user"
	CmdRemoveUser   = "remove_user"
	CmdListUsers    = "list_users"
	CmdBotOff       = "bot_off"
	CmdBotOn        = "bot_on"
	CmdEvent        = history.KindEvent
)

// adminCommands stay active while the bot is disabled.
var adminCommands = map[string]bool{
	CmdAddUser:    true,
	CmdRemoveUser: true,
	CmdListUsers:  true,
	CmdBotOff:     true,
	CmdBotOn:      true,
}

const (
	noMessagesReply = "There are no messages in the context for this channel."
	noUsersReply    = "No authorized users."
	botOffReply     = "Chronicle bot turned off. Only admin commands will remain active."
	botOnReply      = "Chronicle bot turned on."
)

// ownerOnlyAction completes "only the channel owner or moderators can ...".
var ownerOnlyAction = map[string]string{
	CmdAddUser:    "add authorized users",
	CmdRemoveUser: "remove authorized users",
	CmdListUsers:  "list authorized users",
	CmdBotOff:     "turn off the chronicle bot",
	CmdBotOn:      "turn on the chronicle bot",
}

func ownerOnlyReply(name, cmd string) string {
	return fmt.Sprintf("@%s, only the channel owner or moderators can %s.", name, ownerOnlyAction[cmd])
}

func notAuthorizedReply(name string) string {
	return fmt.Sprintf("@%s, you are not authorized to use this command.", name)
}

func eventUsageReply(name, prefix string) string {
	return fmt.Sprintf("@%s, incorrect format. Use: %s%s <year> <event summary>", name, prefix, CmdEvent)
}

func userUsageReply(name, prefix, cmd string) string {
	return fmt.Sprintf("@%s, use: %s%s <username>", name, prefix, cmd)
}

func resetReply(name string) string {
	return fmt.Sprintf("@%s, context reset for this channel.", name)
}

func stateFailedReply(name string) string {
	return fmt.Sprintf("@%s, could not update the bot state. Try again later.", name)
}

func contextLine(l history.Line) string {
	return fmt.Sprintf("%s %s: %s", l.Date(), l.User, l.Text)
}

func listUsersReply(users []string) string {
	if len(users) == 0 {
		return noUsersReply
	}
	tagged := make([]string, len(users))
	for i, u := range users {
		tagged[i] = "@" + u
	}
	return "Authorized users: " + strings.Join(tagged, ", ")
}

// HelpLines is the fixed command summary sent for the help command.
func HelpLines(prefix string) []string {
	p := prefix
	return []string{
		fmt.Sprintf("Commands: %[1]scontext, %[1]sreset_context, %[1]sadd_user <username>, %[1]sremove_user <username>, %[1]slist_users, %[1]sbot_off, %[1]sbot_on, %[1]sevent <year> <summary>", p),
		fmt.Sprintf("Authorization: most commands require authorization. Use %shelp for this message.", p),
	}
}
