// ABOUTME: Entry point for the commsync agent
// ABOUTME: Routes to sync, daemon, status, transcribe, and auth commands
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/commsync/cli"
)

const version = "0.1.0"

func main() {
	// .env is optional; real config lives at the XDG config path
	_ = godotenv.Load()

	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("commsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "sync":
		if err := cli.SyncCommand(commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "daemon":
		if err := cli.DaemonCommand(commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "status":
		if err := cli.StatusCommand(commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "transcribe":
		if err := cli.TranscribeCommand(commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "auth":
		if err := cli.AuthCommand(commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`commsync v%s - personal communication sync agent

USAGE:
  commsync [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit

COMMANDS:
  commsync sync          Run one sync cycle across all sources
    --force                 Full resync: clear local state, ignore the window
    --hours <n>             Override the lookback window in hours
    --sources <list>        Comma-separated sources (granola, fathom,
                            imessage, whatsapp, plaud, gmail)
    --url <url>             Override the server URL

  commsync daemon        Run sync cycles on an interval until interrupted
    --interval <n>          Minutes between cycles (default: config value)
    --sources <list>        Comma-separated sources to sync
    --url <url>             Override the server URL

  commsync status        Show per-source local sync state (no network)

  commsync transcribe    Upload one audio recording for transcription
    --file <path>           Audio file to transcribe (required)
    --person <name>         Person hint: who the conversation was with
    --url <url>             Override the server URL

  commsync auth          Authenticate the gmail source via Google OAuth

CONFIG:
  Settings live in ~/.config/commsync/config.json and can be overridden
  with COMMSYNC_URL, COMMSYNC_LOOKBACK_HOURS, FATHOM_API_KEY, and friends.
  A .env file in the working directory is loaded at startup.

EXAMPLES:
  # One incremental cycle against a local server
  commsync sync --url http://localhost:3000

  # Resync the last week of iMessage only
  commsync sync --sources imessage --hours 168

  # Resident agent syncing every 15 minutes
  commsync daemon

  # Upload a recording with a person hint
  commsync transcribe --file ~/Desktop/call.m4a --person "John Smith"

`, version)
}
