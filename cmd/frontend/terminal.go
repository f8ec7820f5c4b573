// file: cmd/frontend/terminal.go
package frontend

import (
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkoosis/preflight/internal/logging"
	"github.com/dkoosis/preflight/internal/startup"
)

// Terminal owns the tty. Only one program runs on it at a time.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	logger logging.Logger
	mu     sync.Mutex
}

// NewTerminal draws dialogs on out and reads keys from in.
func NewTerminal(in io.Reader, out io.Writer, logger logging.Logger) *Terminal {
	return &Terminal{in: in, out: out, logger: logging.OrNoop(logger).WithField("component", "terminal")}
}

// run blocks until m quits. started receives the program before it runs.
func (t *Terminal) run(m tea.Model, started func(*tea.Program)) (tea.Model, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := tea.NewProgram(m, tea.WithInput(t.in), tea.WithOutput(t.out))
	if started != nil {
		started(p)
	}
	return p.Run()
}

// Error shows msg until dismissed.
func (t *Terminal) Error(msg string) {
	if _, err := t.run(newNotice("Error", msg, "enter dismiss"), nil); err != nil {
		t.logger.Error("Failed to show error message.", "message", msg, "error", err)
	}
}

// Ask shows a yes/no question. Anything but yes is no.
func (t *Terminal) Ask(question string) bool {
	final, err := t.run(newNotice("Question", question, "y yes  n no"), nil)
	if err != nil {
		t.logger.Error("Failed to ask question.", "question", question, "error", err)
		return false
	}
	n, ok := final.(*noticeModel)
	return ok && n.response.Affirmative()
}

// presenter runs a dialog program on its own goroutine.
type presenter struct {
	term   *Terminal
	name   string
	mu     sync.Mutex
	prog   *tea.Program
	hidden bool
}

// present starts m and calls finish then respond once the program ends.
// A dialog hidden before its program starts reports ResponseClose.
func (p *presenter) present(m tea.Model, finish func(tea.Model) startup.Response, respond func(startup.Response)) {
	p.mu.Lock()
	p.hidden = false
	p.mu.Unlock()

	go func() {
		final, err := p.term.run(m, func(prog *tea.Program) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.hidden {
				go prog.Quit()
			}
			p.prog = prog
		})
		p.mu.Lock()
		p.prog = nil
		p.mu.Unlock()
		if err != nil {
			p.term.logger.Error("Dialog program failed.", "dialog", p.name, "error", err)
			respond(startup.ResponseClose)
			return
		}
		respond(finish(final))
	}()
}

// Hide quits the running program, if any.
func (p *presenter) Hide() {
	p.mu.Lock()
	p.hidden = true
	prog := p.prog
	p.mu.Unlock()
	if prog != nil {
		prog.Quit()
	}
}

// send delivers msg to the running program. It reports false when no
// program is running.
func (p *presenter) send(msg tea.Msg) bool {
	p.mu.Lock()
	prog := p.prog
	p.mu.Unlock()
	if prog == nil {
		return false
	}
	go prog.Send(msg)
	return true
}
