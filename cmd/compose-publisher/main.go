package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(dispatchSubcommand(os.Args[1:]))
}

func dispatchSubcommand(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 1
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "publish":
		return runCommand(runPublishCommand, args[1:])
	case "cleanup":
		return runCommand(runCleanupCommand, args[1:])
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'compose-publisher --help' for usage.")
		return 1
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

func exitCodeForError(err error) int {
	if pkgerrors.HasCode(err, pkgerrors.ErrCodeConfigLoad) ||
		pkgerrors.HasCode(err, pkgerrors.ErrCodeConfigInvalid) ||
		pkgerrors.HasCode(err, pkgerrors.ErrCodeInvalidInput) {
		return 2
	}
	return 1
}

// splitList parses a comma-separated flag value, dropping empty entries so
// trailing commas and double commas are harmless.
func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printHelp() {
	fmt.Println("compose-publisher - post-compose transformation and publishing")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  compose-publisher <command> [flags]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  publish    Transform and publish the latest compose results")
	fmt.Println("  cleanup    Prune old result directories, keeping the newest builds")
	fmt.Println("  version    Show version information")
	fmt.Println()
	fmt.Println("Run 'compose-publisher <command> --help' for command flags.")
}

func printVersion() {
	fmt.Printf("compose-publisher %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}
