package main

import (
	"fmt"
	"os"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "verdict":
		os.Exit(runVerdictNoun(args))
	case "webhook":
		os.Exit(runWebhookNoun(args))

	// --- ROOT ALIASES ---
	case "start":
		os.Exit(runStart(args))
	case "version":
		fmt.Printf("commitgate version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`commitgate - Commit trust verification for push webhooks

Usage:
  commitgate <noun> <action> [flags]

Core Resources (Nouns):
  system    Service lifecycle
  config    Configuration, secrets and integrity
  verdict   Recorded verification outcomes
  webhook   Delivery tooling

System Commands:
  system start          Start the webhook service in foreground

Config Commands:
  config check          Validate configuration and resolve secrets
  config lock           Authorize current state (update integrity hash)
  config show [path]    Show resolved configuration

Verdict Commands:
  verdict list          Show recent verdicts
  verdict show <sha>    Show every verdict recorded for a commit

Webhook Commands:
  webhook sign          Print the signature header for a payload

General:
  version               Show version information
  help                  Show this help message

Use 'commitgate <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runVerdictNoun(args []string) int {
	if len(args) < 1 {
		printVerdictNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printVerdictNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printVerdictListHelp()
			return 0
		}
		return runVerdictList(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printVerdictShowHelp()
			return 0
		}
		return runVerdictShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown verdict action: %s\n", action)
		return 1
	}
}

func runWebhookNoun(args []string) int {
	if len(args) < 1 {
		printWebhookNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printWebhookNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "sign":
		if hasHelpFlag(actionArgs) {
			printWebhookSignHelp()
			return 0
		}
		return runWebhookSign(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown webhook action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: commitgate system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: commitgate config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printVerdictNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: commitgate verdict <action> [flags]")
	fmt.Fprintln(w, "Actions: list, show")
}

func printWebhookNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: commitgate webhook <action> [flags]")
	fmt.Fprintln(w, "Actions: sign")
}

func printSystemStartHelp() {
	fmt.Println("Usage: commitgate system start [--config PATH]")
	fmt.Println("Start the webhook service in the foreground.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: commitgate config check [--config PATH]")
	fmt.Println("Validate configuration and confirm every referenced secret resolves.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: commitgate config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize the current configuration by regenerating its integrity hash.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: commitgate config show [path] [--config PATH] [--json]")
	fmt.Println("Show the resolved configuration, or one dot-notation node of it.")
}

func printVerdictListHelp() {
	fmt.Println("Usage: commitgate verdict list [--config PATH] [--repository OWNER/NAME] [--limit N] [--json]")
	fmt.Println("Show the most recent recorded verdicts, newest first.")
}

func printVerdictShowHelp() {
	fmt.Println("Usage: commitgate verdict show <sha> [--config PATH] [--json]")
	fmt.Println("Show every verdict recorded for a commit SHA or SHA prefix.")
}

func printWebhookSignHelp() {
	fmt.Println("Usage: commitgate webhook sign [--config PATH] [--secret-ref NAME] [--file PATH]")
	fmt.Println("Print the signature header value for a payload read from --file or stdin.")
}
