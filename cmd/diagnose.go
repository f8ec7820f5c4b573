// file: cmd/diagnose.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/config"
	"github.com/dkoosis/preflight/internal/logging"
	"github.com/dkoosis/preflight/internal/markers"
	"github.com/dkoosis/preflight/internal/pluginscan"
)

// scanCommand runs a full plugin scan outside the startup sequence.
func scanCommand(args []string) int {
	fs := flag.NewFlagSet("scan-plugins", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "Path to configuration file.")
	debug := fs.Bool("debug", false, "Enable debug logging.")
	if err := fs.Parse(args); err != nil {
		log.Printf("Failed to parse scan-plugins flags: %+v", err)
		return exitFatal
	}

	cfg, logger, err := loadConfig(*configPath, *debug)
	if err != nil {
		logger.Error("Invalid configuration.", "path", *configPath, "error", fmt.Sprintf("%+v", err))
		return exitFatal
	}

	scanner := pluginscan.NewScanner(cfg.Plugins.SearchPaths, cfg.PluginCacheFile(), logging.GetLogger("plugins"))
	sum, err := scanner.Scan(context.Background(), false)
	if err != nil {
		logger.Error("Plugin scan failed.", "error", err)
		return exitProgram
	}

	fmt.Printf("%-10s %-6s %s\n", "FORMAT", "STATUS", "PATH")
	for _, e := range scanner.Entries() {
		fmt.Printf("%-10s %-6s %s\n", e.Format, e.Status, e.Path)
	}
	fmt.Printf("\n%d plugins (%d new, %d changed, %d removed, %d invalid) in %s\n",
		sum.Total, sum.New, sum.Changed, sum.Removed, sum.Invalid, sum.Duration)
	return exitLoadSession
}

// diagnoseCommand checks that the configured marker backend works and
// gives advice when it does not.
func diagnoseCommand(args []string) int {
	fs := flag.NewFlagSet("diagnose-markers", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "Path to configuration file.")
	if err := fs.Parse(args); err != nil {
		log.Printf("Failed to parse diagnose-markers flags: %+v", err)
		return exitFatal
	}

	cfg, logger, err := loadConfig(*configPath, true)
	if err != nil {
		logger.Error("Invalid configuration.", "path", *configPath, "error", fmt.Sprintf("%+v", err))
		return exitFatal
	}
	logger.Info("Starting marker diagnostics...")

	fmt.Println("\n=== Startup Marker Diagnostics ===")
	fmt.Printf("Configured backend: %s\n", cfg.Markers.Backend)
	fmt.Printf("Marker directory:   %s\n", cfg.MarkerDir())

	keyring := markers.NewKeyringStore(logging.GetLogger("markers"))
	available := keyring.IsAvailable()
	fmt.Printf("Keyring available:  %t\n", available)

	store, err := markers.New(cfg.Markers.Backend, cfg.MarkerDir(), logging.GetLogger("markers"))
	if err != nil {
		fmt.Printf("Cannot open marker store: %v\n", err)
		return exitProgram
	}

	const probe = "diagnostic-probe"
	results := map[string]error{}
	results["set"] = store.Set(probe)
	has, err := store.Has(probe)
	if err == nil && !has {
		err = errors.New("marker not found after set")
	}
	results["has"] = err
	results["clear"] = store.Clear(probe)

	ok := true
	for _, op := range []string{"set", "has", "clear"} {
		status := "ok"
		if results[op] != nil {
			status = results[op].Error()
			ok = false
		}
		fmt.Printf("%-18s: %s\n", op, status)
	}

	for _, name := range []string{markers.PreReleaseAcknowledged, markers.FirstRunCompleted} {
		set, err := store.Has(name)
		fmt.Printf("%-26s: set=%t err=%v\n", name, set, err)
	}

	fmt.Println("\nRecommendations:")
	switch {
	case !ok:
		fmt.Println("Marker storage is not working. Check permissions on the marker directory,")
		fmt.Println("or set markers.backend to \"file\" in the configuration.")
	case cfg.Markers.Backend == markers.BackendKeyring && !available:
		fmt.Println("The keyring is not available, so marker files are used instead.")
	default:
		fmt.Println("Marker storage appears to be working correctly.")
	}
	if !ok {
		return exitProgram
	}
	return exitLoadSession
}
