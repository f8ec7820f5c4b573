// file: cmd/control.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/config"
	"github.com/dkoosis/preflight/internal/control"
)

// controlCommand sends one request to the running instance. op is "open"
// (with a session path argument) or "reset".
func controlCommand(op control.Op, args []string) int {
	fs := flag.NewFlagSet(string(op), flag.ExitOnError)
	configPath := fs.String("config", config.DefaultConfigPath(), "Path to configuration file.")
	if err := fs.Parse(args); err != nil {
		log.Printf("Failed to parse %s flags: %+v", op, err)
		return exitFatal
	}

	req := control.Request{Op: op}
	if op == control.OpOpen {
		if fs.NArg() != 1 {
			printUsage()
			return exitFatal
		}
		// The running instance has its own working directory.
		abs, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			log.Printf("Cannot resolve %s: %v", fs.Arg(0), err)
			return exitFatal
		}
		req.Path = abs
	}

	cfg, logger, err := loadConfig(*configPath, false)
	if err != nil {
		logger.Error("Invalid configuration.", "path", *configPath, "error", fmt.Sprintf("%+v", err))
		return exitFatal
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := control.Send(ctx, cfg.ControlSocket(), req); err != nil {
		if errors.Is(err, control.ErrNotRunning) {
			logger.Error("No running preflight to send the request to.", "socket", cfg.ControlSocket())
		} else {
			logger.Error("Control request failed.", "op", op, "error", err)
		}
		return exitProgram
	}
	logger.Info("Request delivered.", "op", op, "path", req.Path)
	return exitLoadSession
}
