// Package frontend implements the pre-flight dialogs as small terminal
// programs. Each dialog runs one bubbletea program while it is presented
// and reports a startup.Response when the user is done with it.
// file: cmd/frontend/form.go
package frontend

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dkoosis/preflight/internal/startup"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	bodyStyle   = lipgloss.NewStyle().Width(72)
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	labelStyle  = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("245"))
	focusStyle  = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("212")).Bold(true)
	choiceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	modalStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// field is either free text or a fixed set of choices.
type field struct {
	label   string
	input   textinput.Model
	choices []string
	choice  int
}

func textField(label, value, placeholder string) field {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholder
	in.SetValue(value)
	in.CharLimit = 512
	in.Width = 48
	return field{label: label, input: in}
}

func choiceField(label string, choices []string, selected string) field {
	f := field{label: label, choices: choices}
	for i, c := range choices {
		if c == selected {
			f.choice = i
		}
	}
	return f
}

func (f field) value() string {
	if f.choices != nil {
		if len(f.choices) == 0 {
			return ""
		}
		return f.choices[f.choice]
	}
	return strings.TrimSpace(f.input.Value())
}

// noteMsg replaces the note above a form that is already on screen.
type noteMsg string

// formModel edits a column of fields. Enter accepts, esc cancels.
type formModel struct {
	title    string
	note     string
	fields   []field
	focus    int
	response startup.Response
	// keys maps extra key strings to handlers that may rewrite the fields.
	keys map[string]func(*formModel)
}

func newForm(title, note string, fields ...field) *formModel {
	m := &formModel{title: title, note: note, fields: fields, response: startup.ResponseClose}
	m.setFocus(0)
	return m
}

func (m *formModel) setFocus(i int) {
	n := len(m.fields)
	if n == 0 {
		return
	}
	m.focus = ((i % n) + n) % n
	for j := range m.fields {
		if j == m.focus && m.fields[j].choices == nil {
			m.fields[j].input.Focus()
		} else {
			m.fields[j].input.Blur()
		}
	}
}

func (m *formModel) get(label string) string {
	for _, f := range m.fields {
		if f.label == label {
			return f.value()
		}
	}
	return ""
}

func (m *formModel) set(label, value string) {
	for i := range m.fields {
		if m.fields[i].label != label {
			continue
		}
		if m.fields[i].choices != nil {
			for j, c := range m.fields[i].choices {
				if c == value {
					m.fields[i].choice = j
				}
			}
			return
		}
		m.fields[i].input.SetValue(value)
	}
}

func (m *formModel) Init() tea.Cmd { return textinput.Blink }

func (m *formModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if note, ok := msg.(noteMsg); ok {
		m.note = string(note)
		return m, nil
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			m.response = startup.ResponseClose
			return m, tea.Quit
		case "esc":
			m.response = startup.ResponseCancel
			return m, tea.Quit
		case "enter":
			m.response = startup.ResponseAccept
			return m, tea.Quit
		case "tab", "down":
			m.setFocus(m.focus + 1)
			return m, nil
		case "shift+tab", "up":
			m.setFocus(m.focus - 1)
			return m, nil
		}
		if fn, ok := m.keys[key.String()]; ok {
			fn(m)
			return m, nil
		}
		if len(m.fields) > 0 && m.fields[m.focus].choices != nil {
			f := &m.fields[m.focus]
			if n := len(f.choices); n > 0 {
				switch key.String() {
				case "left", "h":
					f.choice = (f.choice + n - 1) % n
				case "right", "l", " ":
					f.choice = (f.choice + 1) % n
				}
			}
			return m, nil
		}
	}
	if len(m.fields) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
	return m, cmd
}

func (m *formModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	if m.note != "" {
		b.WriteString(noteStyle.Render(m.note))
		b.WriteString("\n\n")
	}
	for i, f := range m.fields {
		label := labelStyle
		if i == m.focus {
			label = focusStyle
		}
		b.WriteString(label.Render(f.label))
		if f.choices != nil {
			b.WriteString(choiceStyle.Render("< " + f.value() + " >"))
		} else {
			b.WriteString(f.input.View())
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab next field  ←/→ change choice  enter accept  esc cancel"))
	return modalStyle.Render(b.String()) + "\n"
}

// noticeModel shows a message and waits for a yes or no.
type noticeModel struct {
	title    string
	body     string
	help     string
	response startup.Response
}

func newNotice(title, body, help string) *noticeModel {
	return &noticeModel{title: title, body: body, help: help, response: startup.ResponseClose}
}

func (m *noticeModel) Init() tea.Cmd { return nil }

func (m *noticeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "enter", "y":
		m.response = startup.ResponseAccept
		return m, tea.Quit
	case "esc", "n", "q":
		m.response = startup.ResponseCancel
		return m, tea.Quit
	case "ctrl+c":
		m.response = startup.ResponseClose
		return m, tea.Quit
	}
	return m, nil
}

func (m *noticeModel) View() string {
	return modalStyle.Render(
		titleStyle.Render(m.title)+"\n\n"+bodyStyle.Render(m.body)+"\n\n"+helpStyle.Render(m.help),
	) + "\n"
}
