package frontend

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkoosis/preflight/internal/engine"
	"github.com/dkoosis/preflight/internal/markers"
	"github.com/dkoosis/preflight/internal/session"
	"github.com/dkoosis/preflight/internal/startup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestNotice_Responses(t *testing.T) {
	cases := map[string]struct {
		msg  tea.KeyMsg
		want startup.Response
	}{
		"enter":  {key(tea.KeyEnter), startup.ResponseAccept},
		"yes":    {runes("y"), startup.ResponseAccept},
		"no":     {runes("n"), startup.ResponseCancel},
		"esc":    {key(tea.KeyEsc), startup.ResponseCancel},
		"ctrl+c": {key(tea.KeyCtrlC), startup.ResponseClose},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m := newNotice("t", "b", "h")
			_, cmd := m.Update(tc.msg)
			require.NotNil(t, cmd)
			assert.Equal(t, tc.want, m.response)
		})
	}

	m := newNotice("t", "b", "h")
	_, cmd := m.Update(runes("x"))
	assert.Nil(t, cmd)
	assert.Equal(t, startup.ResponseClose, m.response, "Unanswered notices count as closed.")
}

func TestForm_EditsAndChoices(t *testing.T) {
	m := newForm("Session", "",
		textField(fieldName, "", ""),
		choiceField(fieldMode, []string{modeOpen, modeNew}, modeNew),
	)
	for _, r := range "Mix" {
		m.Update(runes(string(r)))
	}
	assert.Equal(t, "Mix", m.get(fieldName))

	m.Update(key(tea.KeyTab))
	assert.Equal(t, 1, m.focus)
	m.Update(key(tea.KeyRight))
	assert.Equal(t, modeOpen, m.get(fieldMode))
	m.Update(key(tea.KeyShiftTab))
	assert.Equal(t, 0, m.focus)

	_, cmd := m.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Equal(t, startup.ResponseAccept, m.response)
	assert.Contains(t, m.View(), "Session")
}

func TestSessionDialog_CandidateFromForm(t *testing.T) {
	d := NewSessionDialog(nil, SessionDialogOptions{
		SessionDir:     "/home/u/Sessions",
		NameTemplate:   "Untitled",
		MasterChannels: 2,
	}, nil)
	c := d.Choice()
	assert.Equal(t, "Untitled", c.Name)
	assert.True(t, c.NewRequested)
	assert.Equal(t, "/home/u/Sessions", c.ParentFolder)

	form := newForm("Session", "",
		textField(fieldName, "My Song", ""),
		textField(fieldFolder, "/home/u/Sessions", ""),
		choiceField(fieldMode, []string{modeOpen, modeNew}, modeNew),
		choiceField(fieldTemplate, []string{"(none)", "Podcast"}, "Podcast"),
		textField(fieldChannels, "6", ""),
	)
	form.response = startup.ResponseAccept
	assert.Equal(t, startup.ResponseAccept, d.finish(form))
	assert.Equal(t, session.Candidate{
		Name:           "My Song",
		ParentFolder:   "/home/u/Sessions",
		NewRequested:   true,
		TemplateName:   "Podcast",
		MasterChannels: 6,
	}, d.Choice())

	// A cancelled form leaves the previous choice alone.
	form.response = startup.ResponseCancel
	form.set(fieldName, "Other")
	assert.Equal(t, startup.ResponseCancel, d.finish(form))
	assert.Equal(t, "My Song", d.Choice().Name)
}

func TestSessionDialog_SetMessage(t *testing.T) {
	d := NewSessionDialog(nil, SessionDialogOptions{NameTemplate: "x"}, nil)

	// Not on screen: the note waits for the next Present.
	d.SetMessage("No such session.")
	assert.Equal(t, "No such session.", d.note)

	// On screen: the running form gets the note directly.
	form := newForm("Session", "", textField(fieldName, "x", ""))
	_, cmd := form.Update(noteMsg(`Session names may not contain ":".`))
	assert.Nil(t, cmd)
	assert.Equal(t, `Session names may not contain ":".`, form.note)
}

func TestSessionDialog_RecentCycler(t *testing.T) {
	recent := session.NewRecentList(filepath.Join(t.TempDir(), "recent"), 5)
	require.NoError(t, recent.Add(session.RecentEntry{Name: "A", Path: "/s/A"}))
	require.NoError(t, recent.Add(session.RecentEntry{Name: "B", Path: "/s/B"}))

	d := NewSessionDialog(nil, SessionDialogOptions{Recent: recent, NameTemplate: "x"}, nil)
	form := newForm("Session", "",
		textField(fieldName, "x", ""),
		choiceField(fieldMode, []string{modeOpen, modeNew}, modeNew),
	)
	cycle := d.recentCycler()
	cycle(form)
	assert.Equal(t, "/s/B", form.get(fieldName))
	assert.Equal(t, modeOpen, form.get(fieldMode))
	cycle(form)
	assert.Equal(t, "/s/A", form.get(fieldName))
	cycle(form)
	assert.Equal(t, "/s/B", form.get(fieldName))
}

func TestEngineDialog_ParamsFromForm(t *testing.T) {
	d := NewEngineDialog(nil, []engine.BackendInfo{{Name: "dummy", Available: true}},
		engine.Params{Backend: "dummy", SampleRate: 48000, BufferSize: 512}, nil)
	d.SetDesiredSampleRate(96000)

	form := newForm("Audio/MIDI setup", "",
		choiceField(fieldBackend, []string{"dummy"}, "dummy"),
		textField(fieldDevice, "hw:1", ""),
		textField(fieldRate, "96000", ""),
		textField(fieldBufferSize, "not a number", ""),
		choiceField(fieldMIDI, []string{noMIDI}, noMIDI),
	)
	form.response = startup.ResponseAccept
	assert.Equal(t, startup.ResponseAccept, d.finish(form))
	assert.Equal(t, engine.Params{Backend: "dummy", Device: "hw:1", SampleRate: 96000, BufferSize: 512}, d.Params())
}

func TestEngineDialog_DesiredRatePrefillsOnce(t *testing.T) {
	d := NewEngineDialog(nil, nil, engine.Params{Backend: "dummy", SampleRate: 48000, BufferSize: 512}, nil)

	d.SetDesiredSampleRate(96000)
	assert.Equal(t, 96000, d.formParams().SampleRate)
	assert.Equal(t, 48000, d.formParams().SampleRate, "The desired rate is only a first suggestion.")

	d.SetDesiredSampleRate(96000)
	d.SetDesiredSampleRate(0)
	assert.Equal(t, 48000, d.formParams().SampleRate, "0 clears an earlier session's rate.")
	assert.Equal(t, 48000, d.Params().SampleRate)
}

type memStore map[string]bool

func (m memStore) Has(n string) (bool, error) { return m[n], nil }
func (m memStore) Set(n string) error         { m[n] = true; return nil }
func (m memStore) Clear(n string) error       { delete(m, n); return nil }

func TestNewUserDialog_RecordsFirstRun(t *testing.T) {
	store := memStore{}
	d := NewNewUserDialog(nil, store, nil)

	declined := newNotice("", "", "")
	declined.response = startup.ResponseCancel
	assert.Equal(t, startup.ResponseCancel, d.finish(declined))
	assert.False(t, store[markers.FirstRunCompleted])

	accepted := newNotice("", "", "")
	accepted.response = startup.ResponseAccept
	assert.Equal(t, startup.ResponseAccept, d.finish(accepted))
	assert.True(t, store[markers.FirstRunCompleted])
}
