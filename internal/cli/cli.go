// Package cli parses hark's command line.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

type Command string

const (
	CommandServe       Command = "serve"
	CommandStart       Command = "start"
	CommandStop        Command = "stop"
	CommandStatus      Command = "status"
	CommandLanguages   Command = "languages"
	CommandPermissions Command = "permissions"
	CommandDevices     Command = "devices"
	CommandHistory     Command = "history"
	CommandDoctor      Command = "doctor"
	CommandVersion     Command = "version"
	CommandHelp        Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:       {},
	CommandStart:       {},
	CommandStop:        {},
	CommandStatus:      {},
	CommandLanguages:   {},
	CommandPermissions: {},
	CommandDevices:     {},
	CommandHistory:     {},
	CommandDoctor:      {},
	CommandVersion:     {},
	CommandHelp:        {},
}

// StartFlags are the options of `hark start`. Unset values defer to config.
type StartFlags struct {
	Language       string
	MaxResults     int
	Prompt         string
	PartialResults bool
	Popup          bool
	SilenceMS      int
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	Start   StartFlags
	Request bool
	Limit   int
	JSON    bool
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
			if err := parseCommandFlags(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseCommandFlags(parsed *Parsed, rest []string) error {
	fs := flag.NewFlagSet(string(parsed.Command), flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch parsed.Command {
	case CommandStart:
		fs.StringVar(&parsed.Start.Language, "language", "", "")
		fs.IntVar(&parsed.Start.MaxResults, "max-results", 0, "")
		fs.StringVar(&parsed.Start.Prompt, "prompt", "", "")
		fs.BoolVar(&parsed.Start.PartialResults, "partial", false, "")
		fs.BoolVar(&parsed.Start.Popup, "popup", false, "")
		fs.IntVar(&parsed.Start.SilenceMS, "silence-ms", 0, "")
	case CommandPermissions:
		fs.BoolVar(&parsed.Request, "request", false, "")
	case CommandHistory:
		fs.IntVar(&parsed.Limit, "limit", 20, "")
		fs.BoolVar(&parsed.JSON, "json", false, "")
	case CommandDevices, CommandLanguages, CommandStatus:
		fs.BoolVar(&parsed.JSON, "json", false, "")
	}

	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			parsed.ShowHelp = true
			return nil
		}
		return fmt.Errorf("%s: %w", parsed.Command, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
	}

	if parsed.Start.MaxResults < 0 {
		return errors.New("start: --max-results must be >= 0")
	}
	if parsed.Start.SilenceMS < 0 {
		return errors.New("start: --silence-ms must be >= 0")
	}
	if parsed.Limit < 0 {
		return errors.New("history: --limit must be >= 0")
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [flags]

Commands:
  serve         Run the recognition daemon
  start         Start a recognition session and print the transcript
                  --language TAG     BCP-47 language (default: config or system locale)
                  --max-results N    Alternatives to request (default: 5)
                  --prompt TEXT      Prompt shown by the engine
                  --partial          Stream partial results instead of waiting
                  --popup            Use the popup recognizer
                  --silence-ms N     Enable segmented sessions with this silence timeout
  stop          Stop the active session
  status        Print daemon and session state
  languages     List languages supported by the engine
  permissions   Print the capture permission state
                  --request          Grant capture permission
  devices       List audio input sources
  history       List recent sessions
                  --limit N          Sessions to show (default: 20)
  doctor        Run configuration and environment checks
  version       Print version information
  help          Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/hark/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
