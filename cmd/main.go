// file: cmd/main.go
package main

import (
	"flag"
	"log"
	"os"

	"github.com/dkoosis/preflight/internal/config"
	"github.com/dkoosis/preflight/internal/control"
)

// Version information - should be set during build via ldflags.
var (
	Version    = "0.1.0-dev" // Default development version
	commitHash = "unknown"   //nolint:unused // Set via ldflags during build
	buildDate  = "unknown"   //nolint:unused // Set via ldflags during build
)

// Exit codes.
const (
	exitLoadSession = 0
	exitProgram     = 1
	exitFatal       = 2
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "scan-plugins":
			os.Exit(scanCommand(os.Args[2:]))
		case "diagnose-markers":
			os.Exit(diagnoseCommand(os.Args[2:]))
		case "open":
			os.Exit(controlCommand(control.OpOpen, os.Args[2:]))
		case "reset":
			os.Exit(controlCommand(control.OpReset, os.Args[2:]))
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		}
	}
	os.Exit(startCommand(os.Args[1:]))
}

// startCommand runs the startup sequence and prints the launch request.
func startCommand(args []string) int {
	fs := flag.NewFlagSet("preflight", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "Path to configuration file.")
	newSession := fs.Bool("new", false, "Create a new session instead of opening one.")
	template := fs.String("template", "", "Template for a new session.")
	debug := fs.Bool("debug", false, "Enable debug logging.")
	fs.Usage = printUsage

	// Check error from Parse.
	if err := fs.Parse(args); err != nil {
		log.Printf("Failed to parse flags: %+v", err)
		return exitFatal
	}
	if fs.NArg() > 1 {
		printUsage()
		return exitFatal
	}

	opts := runOptions{
		ConfigPath: *configPath,
		Debug:      *debug,
		Path:       fs.Arg(0),
		New:        *newSession,
		Template:   *template,
	}
	return run(opts)
}

// printUsage prints usage information for the command.
func printUsage() {
	// Use standard log package for usage before logger setup
	log.SetFlags(0)
	log.Println("Usage:")
	log.Println("  preflight [options] [session]         - Choose a session and bring up the audio engine")
	log.Println("  preflight scan-plugins [options]      - Run a full plugin scan and print a summary")
	log.Println("  preflight diagnose-markers [options]  - Test startup marker storage")
	log.Println("  preflight open [options] session      - Hand a session to the running instance")
	log.Println("  preflight reset [options]             - Send the running instance back to session choice")
	log.Println("\nOptions:")
	log.Println("  -config path   configuration file")
	log.Println("  -new           create a new session")
	log.Println("  -template name template for a new session")
	log.Println("  -debug         debug logging")
	log.Printf("\npreflight %s\n", Version)
}
