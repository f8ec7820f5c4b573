package session

// file: internal/session/request.go

import "path/filepath"

// BusProfile is the channel layout of a new session's master bus.
type BusProfile struct {
	MasterOutChannels int `yaml:"master_out_channels"`
}

// TemplateRef points at the template a new session starts from.
type TemplateRef struct {
	Name string `yaml:"name,omitempty"`
	Path string `yaml:"path,omitempty"`
	// Meta is true for script-based templates.
	Meta bool `yaml:"meta,omitempty"`
}

// IsZero reports whether no template was requested.
func (t TemplateRef) IsZero() bool { return t.Name == "" && t.Path == "" }

// LaunchRequest is everything the application needs to open or create the
// chosen session. It is handed over once, with the LoadSession outcome.
type LaunchRequest struct {
	ID           string      `yaml:"id"`
	SessionPath  string      `yaml:"session_path"`
	SessionName  string      `yaml:"session_name"`
	Template     TemplateRef `yaml:"template,omitempty"`
	IsNew        bool        `yaml:"is_new"`
	SampleRate   int         `yaml:"sample_rate"`
	SampleFormat string      `yaml:"sample_format,omitempty"`
	Version      int         `yaml:"version,omitempty"`
	CreatedWith  string      `yaml:"created_with,omitempty"`
	ModifiedWith string      `yaml:"modified_with,omitempty"`
	Bus          BusProfile  `yaml:"bus"`
}

// StatefilePath is the state file the session is loaded from.
func (r LaunchRequest) StatefilePath() string {
	return filepath.Join(r.SessionPath, r.SessionName+StatefileSuffix)
}

// Candidate is a session choice as typed into the session dialog or given
// on the command line.
type Candidate struct {
	// Name is a bare session name or a path to a session, its state file or an archive.
	Name string
	// ParentFolder is where a bare name lives. Empty means the default session directory.
	ParentFolder string
	// NewRequested is true when the user asked for a new session.
	NewRequested bool
	// TemplateName optionally names a template for a new session.
	TemplateName string
	// MasterChannels is the master bus width for a new session.
	MasterChannels int
}
