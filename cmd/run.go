// file: cmd/run.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/cmd/frontend"
	"github.com/dkoosis/preflight/internal/config"
	"github.com/dkoosis/preflight/internal/control"
	"github.com/dkoosis/preflight/internal/engine"
	"github.com/dkoosis/preflight/internal/logging"
	"github.com/dkoosis/preflight/internal/loop"
	"github.com/dkoosis/preflight/internal/markers"
	"github.com/dkoosis/preflight/internal/pluginscan"
	"github.com/dkoosis/preflight/internal/session"
	"github.com/dkoosis/preflight/internal/startup"
	"gopkg.in/yaml.v3"
)

type runOptions struct {
	ConfigPath string
	Debug      bool
	Path       string
	New        bool
	Template   string
}

// loadConfig reads configuration and installs the logger it asks for.
func loadConfig(path string, debug bool) (*config.Config, logging.Logger, error) {
	logging.SetupDefaultLogger("info")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, logging.GetLogger("main"), err
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logging.LevelDebug
	}
	if cfg.Logging.Format == "json" {
		logging.InitLogging(level, os.Stderr)
	} else {
		logging.InitTextLogging(level, os.Stderr)
	}
	logger := logging.GetLogger("main")
	if debug {
		logger.Info("Debug logging enabled.")
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func newEngineManager(cfg *config.Config, logger logging.Logger) *engine.Manager {
	return engine.NewManager(cfg.EngineStateFile(), logger,
		engine.NewSystemBackend(),
		engine.NewDummyBackend(),
	)
}

// engineHost attaches the session loader to the running engine.
type engineHost struct {
	engine *engine.Manager
	logger logging.Logger
}

func (h *engineHost) AttachToEngine(_ context.Context) error {
	if !h.engine.Running() {
		return errors.New("audio engine is not running")
	}
	h.logger.Info("Attached to audio engine.", "backend", h.engine.CurrentBackend(), "sample_rate", h.engine.SampleRate())
	return nil
}

// run wires the startup sequence and drives the event loop until it ends.
func run(opts runOptions) int {
	cfg, logger, err := loadConfig(opts.ConfigPath, opts.Debug)
	if err != nil {
		logger.Error("Invalid configuration.", "path", opts.ConfigPath, "error", fmt.Sprintf("%+v", err))
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := markers.New(cfg.Markers.Backend, cfg.MarkerDir(), logging.GetLogger("markers"))
	if err != nil {
		logger.Error("Cannot open startup markers.", "error", err)
		return exitFatal
	}

	eng := newEngineManager(cfg, logging.GetLogger("engine"))
	defer func() {
		if err := eng.Stop(); err != nil {
			logger.Warn("Engine did not stop cleanly.", "error", err)
		}
	}()

	templates := session.NewTemplateCatalog(cfg.Paths.UserTemplateDir, cfg.Paths.SystemTemplateDirs,
		cfg.Paths.MetaTemplateDirs, logging.GetLogger("templates"))
	validator := session.NewValidator(session.Options{
		SessionDir:            cfg.Paths.SessionDir,
		Templates:             templates,
		DefaultMasterChannels: cfg.Session.MasterChannels,
	}, logging.GetLogger("validator"))
	recent := session.NewRecentList(cfg.RecentFile(), cfg.Session.RecentLimit)
	scanner := pluginscan.NewScanner(cfg.Plugins.SearchPaths, cfg.PluginCacheFile(), logging.GetLogger("plugins"))

	initial := engine.Params{Backend: cfg.Engine.Backend, SampleRate: cfg.Engine.SampleRate, BufferSize: cfg.Engine.BufferSize}
	if last, ok := eng.LastParams(); ok {
		initial = last
	}

	term := frontend.NewTerminal(os.Stdin, os.Stderr, logging.GetLogger("frontend"))
	sessionOpts := frontend.SessionDialogOptions{
		SessionDir:     cfg.Paths.SessionDir,
		NameTemplate:   cfg.Session.DefaultNameTemplate,
		Templates:      templates,
		Recent:         recent,
		MasterChannels: cfg.Session.MasterChannels,
		Initial:        session.Candidate{NewRequested: opts.New, TemplateName: opts.Template},
	}

	var commandLine *session.Candidate
	if opts.Path != "" {
		commandLine = &session.Candidate{Name: opts.Path, NewRequested: opts.New, TemplateName: opts.Template}
	}

	events := loop.New(logging.GetLogger("loop"))
	seq, err := startup.New(startup.Options{
		PreRelease:    cfg.App.PreRelease,
		CacheOnlyScan: cfg.Plugins.CacheOnly,
		CommandLine:   commandLine,
		Loop:          events,
		Markers:       store,
		Dialogs: startup.Dialogs{
			NewPreRelease: func() startup.Dialog { return frontend.NewPreReleaseDialog(term) },
			NewNewUser: func() startup.Dialog {
				return frontend.NewNewUserDialog(term, store, logging.GetLogger("frontend"))
			},
			NewSession: func() startup.SessionDialog {
				return frontend.NewSessionDialog(term, sessionOpts, logging.GetLogger("frontend"))
			},
			EngineSetup: frontend.NewEngineDialog(term, eng.Backends(), initial, logging.GetLogger("frontend")),
		},
		Messenger: term,
		Validator: validator,
		Engine:    eng,
		Scanner:   scanner,
		Host:      &engineHost{engine: eng, logger: logging.GetLogger("host")},
		Logger:    logging.GetLogger("startup"),
	})
	if err != nil {
		logger.Error("Cannot build startup sequence.", "error", fmt.Sprintf("%+v", err))
		return exitFatal
	}

	var result startup.Result
	seq.OnResult(func(r startup.Result) {
		result = r
		events.Quit()
	})
	eng.OnStopped(func() {
		events.Post(func() { logger.Warn("Audio engine stopped.", "state", seq.State()) })
	})

	// `preflight open` and `preflight reset` from another shell reach the
	// sequence through this socket.
	if srv, err := control.Listen(cfg.ControlSocket(), seq, logging.GetLogger("control")); err != nil {
		logger.Warn("Control socket unavailable, open and reset requests are disabled.", "error", err)
	} else {
		defer func() { _ = srv.Close() }()
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Warn("Control socket stopped.", "error", err)
			}
		}()
	}

	seq.Start(ctx)
	if err := events.Run(ctx); err != nil {
		logger.Info("Interrupted.", "error", err)
		return exitProgram
	}

	if result.Outcome != startup.LoadSession {
		logger.Info("Exiting without a session.")
		return exitProgram
	}
	req := result.Request
	if err := recent.Add(session.RecentEntry{Name: req.SessionName, Path: req.SessionPath}); err != nil {
		logger.Warn("Could not update recent sessions.", "error", err)
	}
	out, err := yaml.Marshal(req)
	if err != nil {
		logger.Error("Cannot encode launch request.", "error", err)
		return exitFatal
	}
	fmt.Print(string(out))
	return exitLoadSession
}
