package tui

import "strings"

// Command is a parsed ":" command line.
type Command struct {
	Name string
	Args string
}

// Command names, with their short aliases resolved by ParseCommand.
const (
	CmdQuit      = "quit"
	CmdHelp      = "help"
	CmdChat      = "chat"
	CmdNew       = "new"
	CmdReload    = "reload"
	CmdReconnect = "reconnect"
	CmdFilter    = "filter"
)

var aliases = map[string]string{
	"q":        CmdQuit,
	"q!":       CmdQuit,
	"h":        CmdHelp,
	"c":        CmdChat,
	"open":     CmdChat,
	"n":        CmdNew,
	"contacts": CmdNew,
	"r":        CmdReload,
}

// Commands lists the command names for completion.
func Commands() []string {
	return []string{CmdChat, CmdFilter, CmdHelp, CmdNew, CmdQuit, CmdReconnect, CmdReload}
}

// ParseCommand parses a command line without the leading ':'.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	name, args, _ := strings.Cut(input, " ")
	name = strings.ToLower(name)
	if full, ok := aliases[name]; ok {
		name = full
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}
}
