package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandCapture Command = "capture"
	CommandSay     Command = "say"
	CommandTUI     Command = "tui"
	CommandStatus  Command = "status"
	CommandHealth  Command = "health"
	CommandSinks   Command = "sinks"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandCapture: {},
	CommandSay:     {},
	CommandTUI:     {},
	CommandStatus:  {},
	CommandHealth:  {},
	CommandSinks:   {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// Parsed is the result of parsing the command line.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// Text is the joined input of `say`.
	Text string
	// Translate is set only when --translate or --no-translate was given.
	Translate *bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--translate", "--no-translate":
			on := arg == "--translate"
			parsed.Translate = &on
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			rest := args[i+1:]
			if cmd == CommandSay {
				parsed.Text = strings.TrimSpace(strings.Join(rest, " "))
				if parsed.Text == "" {
					return Parsed{}, errors.New("say requires text")
				}
				return parsed, nil
			}
			if len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--translate|--no-translate] <command> [text...]

Commands:
  capture     Capture the screen, describe it, and speak the caption
  say TEXT    Send text to the backend and speak the result
  tui         Open the interactive interface
  status      Print the state of the running instance
  health      Query the backend health endpoint
  sinks       List available playback sinks
  doctor      Run configuration and environment checks
  version     Print version information
  help        Show this help

Flags:
  --config PATH     Config file path (default: $XDG_CONFIG_HOME/sayshot/config.jsonc)
  --translate       Translate the caption for this run
  --no-translate    Skip translation for this run
  -h, --help        Show help
  --version         Show version
`, binaryName)
}
