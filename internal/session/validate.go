package session

// file: internal/session/validate.go

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
	"github.com/google/uuid"
)

// Verdict is the outcome of validating a session choice.
type Verdict int

// Verdicts.
const (
	// Proceed: the launch request is complete.
	Proceed Verdict = iota
	// Retry: show the chooser again without a message.
	Retry
	// Reject: tell the user what is wrong, then show the chooser again.
	Reject
	// Fail: tell the user, then give up on startup.
	Fail
)

func (v Verdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case Retry:
		return "retry"
	case Reject:
		return "reject"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Prompter asks the user a yes/no question.
type Prompter interface {
	Ask(question string) bool
}

// Options configures a Validator.
type Options struct {
	// SessionDir is the default parent for bare names and inflated archives.
	SessionDir string
	// Templates resolves template names. May be nil.
	Templates *TemplateCatalog
	// Platform selects naming rules. Defaults to the running OS.
	Platform *Platform
	// DefaultMasterChannels is used when a new-session candidate does not say.
	DefaultMasterChannels int
	// Getwd resolves relative locations. Defaults to os.Getwd.
	Getwd func() (string, error)
	// Stat defaults to os.Stat.
	Stat func(string) (fs.FileInfo, error)
}

// Validator turns a Candidate into a LaunchRequest.
type Validator struct {
	sessionDir     string
	templates      *TemplateCatalog
	platform       Platform
	masterChannels int
	getwd          func() (string, error)
	stat           func(string) (fs.FileInfo, error)
	logger         logging.Logger
}

// NewValidator creates a Validator.
func NewValidator(opts Options, logger logging.Logger) *Validator {
	v := &Validator{
		sessionDir:     opts.SessionDir,
		templates:      opts.Templates,
		platform:       CurrentPlatform(),
		masterChannels: opts.DefaultMasterChannels,
		getwd:          opts.Getwd,
		stat:           opts.Stat,
		logger:         logging.OrNoop(logger).WithField("component", "session_validator"),
	}
	if opts.Platform != nil {
		v.platform = *opts.Platform
	}
	if v.masterChannels <= 0 {
		v.masterChannels = 2
	}
	if v.getwd == nil {
		v.getwd = os.Getwd
	}
	if v.stat == nil {
		v.stat = os.Stat
	}
	return v
}

// Check validates c. Every verdict other than Proceed comes with a
// *ValidationError (Retry may come with none); the LaunchRequest is only
// meaningful with Proceed.
func (v *Validator) Check(ctx context.Context, c Candidate, p Prompter) (Verdict, LaunchRequest, error) {
	if err := ctx.Err(); err != nil {
		return Fail, LaunchRequest{}, NewValidationError(ErrCanceled, "Session selection was interrupted.", err)
	}

	name := NormalizeName(c.Name)
	log := v.logger.WithField("candidate", name)

	// Archives short-circuit everything else.
	if IsArchiveName(name) {
		if verdict, req, handled, err := v.checkArchive(ctx, c, name); handled {
			return verdict, req, err
		}
	}

	endedWithStatefile := strings.HasSuffix(name, StatefileSuffix)
	name = StripStatefileSuffix(name)

	if name == "" {
		return Reject, LaunchRequest{}, NewValidationError(ErrEmptyName, "Please enter a name for the session.", nil)
	}

	req := LaunchRequest{IsNew: c.NewRequested}
	if c.NewRequested && c.TemplateName != "" && v.templates != nil {
		req.Template = v.templates.Resolve(c.TemplateName)
	}

	kind := ClassifyName(name, v.platform)
	if kind == BareName {
		parent := c.ParentFolder
		if parent == "" {
			parent = v.sessionDir
		}
		req.SessionPath = filepath.Join(parent, name)
		req.SessionName = name
	} else {
		cwd := ""
		if kind == RelativePath {
			wd, err := v.getwd()
			if err != nil {
				return Fail, LaunchRequest{}, NewValidationError(ErrStatFailed, "Cannot determine the current folder.", err)
			}
			cwd = wd
		}
		req.SessionPath, req.SessionName = SplitLocation(name, kind, endedWithStatefile, cwd)
	}

	if r, bad := IllegalCharacter(req.SessionName, v.platform); bad {
		msg := fmt.Sprintf("To ensure compatibility with various systems, session names may not contain a '%c' character.", r)
		return Reject, LaunchRequest{}, NewValidationError(ErrIllegalCharacter, msg, nil).
			WithContext("character", string(r)).
			WithContext("name", req.SessionName)
	}

	verdict, err := v.reconcileExistence(&req, c.NewRequested, p)
	if verdict != Proceed {
		log.Debug("Session choice not accepted.", "verdict", verdict, "error", err)
		return verdict, LaunchRequest{}, err
	}

	if req.IsNew {
		req.Bus.MasterOutChannels = c.MasterChannels
		if req.Bus.MasterOutChannels <= 0 {
			req.Bus.MasterOutChannels = v.masterChannels
		}
	} else {
		req.Template = TemplateRef{}
		if err := v.readHeader(&req); err != nil {
			return Reject, LaunchRequest{}, err
		}
	}

	req.ID = uuid.NewString()
	log.Info("Session choice accepted.", "path", req.SessionPath, "name", req.SessionName, "new", req.IsNew)
	return Proceed, req, nil
}

// reconcileExistence maps (directory exists, new requested) to a verdict.
func (v *Validator) reconcileExistence(req *LaunchRequest, newRequested bool, p Prompter) (Verdict, error) {
	info, err := v.stat(req.SessionPath)
	switch {
	case err == nil && info.IsDir():
		if !newRequested {
			req.IsNew = false
			return Proceed, nil
		}
		q := fmt.Sprintf("Session \"%s\" already exists at %s. Do you want to open it?", req.SessionName, req.SessionPath)
		if p != nil && p.Ask(q) {
			req.IsNew = false
			return Proceed, nil
		}
		return Retry, nil
	case err == nil:
		return Reject, NewValidationError(ErrNotADirectory,
			fmt.Sprintf("%s exists but is not a session folder.", req.SessionPath), nil).
			WithContext("path", req.SessionPath)
	case errors.Is(err, fs.ErrNotExist):
		if newRequested {
			req.IsNew = true
			return Proceed, nil
		}
		return Reject, NewValidationError(ErrNoSuchSession,
			fmt.Sprintf("There is no existing session at \"%s\".", req.SessionPath), err).
			WithContext("path", req.SessionPath)
	default:
		return Fail, NewValidationError(ErrStatFailed,
			fmt.Sprintf("Cannot access \"%s\".", req.SessionPath), err).
			WithContext("path", req.SessionPath)
	}
}

func (v *Validator) readHeader(req *LaunchRequest) error {
	path := req.StatefilePath()
	h, err := ReadHeader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewValidationError(ErrStatefileMissing,
				fmt.Sprintf("Session \"%s\" has no state file %s.", req.SessionName, filepath.Base(path)), err).
				WithContext("path", path)
		}
		return NewValidationError(ErrStatefileUnreadable,
			fmt.Sprintf("The state file of session \"%s\" could not be read.", req.SessionName), err).
			WithContext("path", path)
	}
	req.SampleRate = h.SampleRate
	req.SampleFormat = h.SampleFormat
	req.Version = h.Version
	req.CreatedWith = h.CreatedWith
	req.ModifiedWith = h.ModifiedWith
	return nil
}

// checkArchive handles a candidate naming an archive. handled is false when
// the name only looks like an archive and validation should go on.
func (v *Validator) checkArchive(ctx context.Context, c Candidate, name string) (Verdict, LaunchRequest, bool, error) {
	path := name
	if ClassifyName(name, v.platform) == BareName && c.ParentFolder != "" {
		path = filepath.Join(c.ParentFolder, name)
	} else if ClassifyName(name, v.platform) == RelativePath {
		if wd, err := v.getwd(); err == nil {
			path = filepath.Join(wd, name)
		}
	}
	info, err := v.stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Proceed, LaunchRequest{}, false, nil
	}

	dir, sname, err := InflateArchive(ctx, path, v.sessionDir)
	if err != nil {
		return Reject, LaunchRequest{}, true, NewValidationError(ErrArchiveFailed,
			fmt.Sprintf("Extracting session archive %s failed.", filepath.Base(path)), err).
			WithContext("archive", path)
	}
	v.logger.Info("Session archive inflated.", "archive", path, "dir", dir)

	req := LaunchRequest{SessionPath: dir, SessionName: sname}
	if err := v.readHeader(&req); err != nil {
		return Reject, LaunchRequest{}, true, err
	}
	req.ID = uuid.NewString()
	return Proceed, req, true, nil
}
