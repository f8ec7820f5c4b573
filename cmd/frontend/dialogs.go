// file: cmd/frontend/dialogs.go
package frontend

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkoosis/preflight/internal/engine"
	"github.com/dkoosis/preflight/internal/logging"
	"github.com/dkoosis/preflight/internal/markers"
	"github.com/dkoosis/preflight/internal/session"
	"github.com/dkoosis/preflight/internal/startup"
)

func responseOf(m tea.Model) startup.Response {
	switch v := m.(type) {
	case *noticeModel:
		return v.response
	case *formModel:
		return v.response
	default:
		return startup.ResponseClose
	}
}

// --- Pre-release notice ---.

// PreReleaseDialog warns that this is not a release build.
type PreReleaseDialog struct {
	presenter
}

// NewPreReleaseDialog creates the notice.
func NewPreReleaseDialog(t *Terminal) *PreReleaseDialog {
	return &PreReleaseDialog{presenter{term: t, name: "pre_release"}}
}

// Present shows the notice.
func (d *PreReleaseDialog) Present(respond func(startup.Response)) {
	d.present(newNotice("Pre-release build",
		"This is a pre-release build. Sessions saved with it may not open in earlier releases, "+
			"and some features are incomplete. Please report problems you run into.",
		"enter continue"), responseOf, respond)
}

// --- First-run wizard ---.

// NewUserDialog welcomes a first-time user. Accepting it records that the
// first run is complete.
type NewUserDialog struct {
	presenter
	store  markers.Store
	logger logging.Logger
}

// NewNewUserDialog creates the wizard. store may be nil.
func NewNewUserDialog(t *Terminal, store markers.Store, logger logging.Logger) *NewUserDialog {
	return &NewUserDialog{
		presenter: presenter{term: t, name: "new_user"},
		store:     store,
		logger:    logging.OrNoop(logger).WithField("component", "new_user_dialog"),
	}
}

// Present shows the wizard.
func (d *NewUserDialog) Present(respond func(startup.Response)) {
	d.present(newNotice("Welcome",
		"It looks like this is the first time you have started the program on this machine. "+
			"Next you will choose or create a session and set up audio.",
		"enter get started  esc quit"), d.finish, respond)
}

func (d *NewUserDialog) finish(m tea.Model) startup.Response {
	r := responseOf(m)
	if r.Affirmative() && d.store != nil {
		if err := d.store.Set(markers.FirstRunCompleted); err != nil {
			d.logger.Warn("Could not record first run.", "error", err)
		}
	}
	return r
}

// --- Session chooser ---.

const (
	fieldName     = "Name"
	fieldFolder   = "Folder"
	fieldMode     = "Mode"
	fieldTemplate = "Template"
	fieldChannels = "Master channels"

	modeOpen = "open existing"
	modeNew  = "create new"
)

// SessionDialogOptions configures the session chooser.
type SessionDialogOptions struct {
	SessionDir     string
	NameTemplate   string
	Templates      *session.TemplateCatalog
	Recent         *session.RecentList
	MasterChannels int
	// Initial pre-fills the form, for example from command line flags.
	Initial session.Candidate
}

// SessionDialog lets the user open or create a session.
type SessionDialog struct {
	presenter
	opts   SessionDialogOptions
	logger logging.Logger

	mu     sync.Mutex
	choice session.Candidate
	note   string
}

// NewSessionDialog creates a chooser.
func NewSessionDialog(t *Terminal, opts SessionDialogOptions, logger logging.Logger) *SessionDialog {
	d := &SessionDialog{
		presenter: presenter{term: t, name: "session"},
		opts:      opts,
		logger:    logging.OrNoop(logger).WithField("component", "session_dialog"),
	}
	d.choice = opts.Initial
	if d.choice.Name == "" {
		name, err := session.DefaultName(opts.NameTemplate, time.Now(), session.CurrentPlatform())
		if err != nil {
			d.logger.Warn("Bad default session name template.", "template", opts.NameTemplate, "error", err)
		}
		d.choice.Name = name
		d.choice.NewRequested = true
	}
	if d.choice.ParentFolder == "" {
		d.choice.ParentFolder = opts.SessionDir
	}
	if d.choice.MasterChannels == 0 {
		d.choice.MasterChannels = opts.MasterChannels
	}
	return d
}

// SetMessage shows msg above the form, at once if it is on screen and
// otherwise the next time it is presented.
func (d *SessionDialog) SetMessage(msg string) {
	if d.send(noteMsg(msg)) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.note = msg
}

// Choice returns the last accepted form contents.
func (d *SessionDialog) Choice() session.Candidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.choice
}

// Present shows the form. ctrl+r cycles through recent sessions.
func (d *SessionDialog) Present(respond func(startup.Response)) {
	d.mu.Lock()
	c, note := d.choice, d.note
	d.note = ""
	d.mu.Unlock()

	mode := modeOpen
	if c.NewRequested {
		mode = modeNew
	}
	templates := []string{"(none)"}
	if d.opts.Templates != nil {
		for _, t := range d.opts.Templates.All() {
			templates = append(templates, t.Name)
		}
	}
	selected := c.TemplateName
	if selected == "" {
		selected = templates[0]
	}
	form := newForm("Session", note,
		textField(fieldName, c.Name, "session name or path"),
		textField(fieldFolder, c.ParentFolder, d.opts.SessionDir),
		choiceField(fieldMode, []string{modeOpen, modeNew}, mode),
		choiceField(fieldTemplate, templates, selected),
		textField(fieldChannels, strconv.Itoa(c.MasterChannels), "2"),
	)
	form.keys = map[string]func(*formModel){"ctrl+r": d.recentCycler()}

	d.present(form, d.finish, respond)
}

func (d *SessionDialog) recentCycler() func(*formModel) {
	var entries []session.RecentEntry
	if d.opts.Recent != nil {
		var err error
		if entries, err = d.opts.Recent.Load(); err != nil {
			d.logger.Warn("Could not read recent sessions.", "error", err)
		}
	}
	next := 0
	return func(m *formModel) {
		if len(entries) == 0 {
			m.note = "No recent sessions."
			return
		}
		e := entries[next%len(entries)]
		next++
		// The full path names the session regardless of the folder field.
		m.set(fieldName, e.Path)
		m.set(fieldMode, modeOpen)
		m.note = fmt.Sprintf("Recent session %d of %d.", (next-1)%len(entries)+1, len(entries))
	}
}

func (d *SessionDialog) finish(m tea.Model) startup.Response {
	form, ok := m.(*formModel)
	if !ok {
		return startup.ResponseClose
	}
	if form.response.Affirmative() {
		d.mu.Lock()
		d.choice = candidateFromForm(form, d.choice.MasterChannels)
		d.mu.Unlock()
	}
	return form.response
}

func candidateFromForm(form *formModel, fallbackChannels int) session.Candidate {
	c := session.Candidate{
		Name:           form.get(fieldName),
		ParentFolder:   form.get(fieldFolder),
		NewRequested:   form.get(fieldMode) == modeNew,
		MasterChannels: fallbackChannels,
	}
	if t := form.get(fieldTemplate); t != "(none)" {
		c.TemplateName = t
	}
	if n, err := strconv.Atoi(form.get(fieldChannels)); err == nil && n > 0 {
		c.MasterChannels = n
	}
	return c
}

// --- Engine setup ---.

const (
	fieldBackend    = "Backend"
	fieldDevice     = "Device"
	fieldRate       = "Sample rate"
	fieldBufferSize = "Buffer size"
	fieldMIDI       = "MIDI input"

	noMIDI = "(none)"
)

// EngineDialog collects audio engine parameters. It is created once and
// reused for every startup sequence in the process.
type EngineDialog struct {
	presenter
	backends []engine.BackendInfo
	logger   logging.Logger

	mu      sync.Mutex
	params  engine.Params
	desired int
}

// NewEngineDialog creates the dialog seeded with initial parameters.
func NewEngineDialog(t *Terminal, backends []engine.BackendInfo, initial engine.Params, logger logging.Logger) *EngineDialog {
	return &EngineDialog{
		presenter: presenter{term: t, name: "engine_setup"},
		backends:  backends,
		params:    initial,
		logger:    logging.OrNoop(logger).WithField("component", "engine_dialog"),
	}
}

// SetDesiredSampleRate pre-selects the rate the session was recorded at the
// next time the form is shown. 0 clears it.
func (d *EngineDialog) SetDesiredSampleRate(rate int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.desired = rate
}

// Params returns the last accepted parameters.
func (d *EngineDialog) Params() engine.Params {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params
}

// formParams returns the values to pre-fill. The desired rate is used once,
// so a form shown again after a failed start keeps what the user typed.
func (d *EngineDialog) formParams() engine.Params {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.params
	if d.desired > 0 {
		p.SampleRate = d.desired
		d.desired = 0
	}
	return p
}

// Present shows the form.
func (d *EngineDialog) Present(respond func(startup.Response)) {
	p := d.formParams()

	var names []string
	for _, b := range d.backends {
		if b.Available {
			names = append(names, b.Name)
		}
	}
	midi := []string{noMIDI}
	ins, err := engine.MIDIInputs()
	if err != nil {
		d.logger.Warn("Cannot list MIDI inputs.", "error", err)
	}
	midi = append(midi, ins...)
	selectedMIDI := p.MIDIInput
	if selectedMIDI == "" {
		selectedMIDI = noMIDI
	}

	form := newForm("Audio/MIDI setup", "",
		choiceField(fieldBackend, names, p.Backend),
		textField(fieldDevice, p.Device, "default"),
		textField(fieldRate, strconv.Itoa(p.SampleRate), "48000"),
		textField(fieldBufferSize, strconv.Itoa(p.BufferSize), "512"),
		choiceField(fieldMIDI, midi, selectedMIDI),
	)
	d.present(form, d.finish, respond)
}

func (d *EngineDialog) finish(m tea.Model) startup.Response {
	form, ok := m.(*formModel)
	if !ok {
		return startup.ResponseClose
	}
	if !form.response.Affirmative() {
		return form.response
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = paramsFromForm(form, d.params)
	return form.response
}

func paramsFromForm(form *formModel, prev engine.Params) engine.Params {
	p := engine.Params{
		Backend:    form.get(fieldBackend),
		Device:     form.get(fieldDevice),
		SampleRate: prev.SampleRate,
		BufferSize: prev.BufferSize,
	}
	if n, err := strconv.Atoi(form.get(fieldRate)); err == nil {
		p.SampleRate = n
	}
	if n, err := strconv.Atoi(form.get(fieldBufferSize)); err == nil {
		p.BufferSize = n
	}
	if in := form.get(fieldMIDI); in != noMIDI {
		p.MIDIInput = in
	}
	return p
}
