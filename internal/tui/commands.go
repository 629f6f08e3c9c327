package tui

import (
	"strings"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

// CommandKind classifies a line of user input.
type CommandKind int

const (
	CommandChat CommandKind = iota
	CommandAction
	CommandMenu
	CommandQuit
	CommandStatus
	CommandMemories
	CommandItems
	CommandHelp
	CommandUnknown
)

// Command is a parsed line of input.
type Command struct {
	Kind   CommandKind
	Text   string        // CommandChat: the message
	Action game.UIAction // CommandAction
}

// HelpText lists the slash commands.
const HelpText = `Commands:
  /move      go somewhere else (switch scene)
  /leave     part ways for now
  /ff        fast-forward to the next meeting
  /status    show affection, scene and flags
  /memories  list the memory gallery
  /items     list received items
  /menu      save and return to the session list
  /quit      save and exit
  1-3        send the numbered suggestion`

// ParseCommand interprets a line. suggestions resolves "1".."3" shortcuts.
func ParseCommand(line string, suggestions []string) Command {
	line = strings.TrimSpace(line)
	if len(line) == 1 && line[0] >= '1' && line[0] <= '9' {
		if idx := int(line[0] - '1'); idx < len(suggestions) {
			return Command{Kind: CommandChat, Text: suggestions[idx]}
		}
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CommandChat, Text: line}
	}

	name, _, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch strings.ToLower(name) {
	case "move":
		return Command{Kind: CommandAction, Action: game.UIActionMove}
	case "leave":
		return Command{Kind: CommandAction, Action: game.UIActionLeave}
	case "ff", "fastforward":
		return Command{Kind: CommandAction, Action: game.UIActionFastForward}
	case "menu":
		return Command{Kind: CommandMenu}
	case "quit", "exit":
		return Command{Kind: CommandQuit}
	case "status":
		return Command{Kind: CommandStatus}
	case "memories":
		return Command{Kind: CommandMemories}
	case "items":
		return Command{Kind: CommandItems}
	case "help", "?":
		return Command{Kind: CommandHelp}
	default:
		return Command{Kind: CommandUnknown, Text: line}
	}
}
