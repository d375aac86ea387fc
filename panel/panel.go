// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package panel provides a terminal front panel for the simulator. It
// splits the screen into a console view wired to the machine's keyboard
// and display devices, a register view, and a status view that collects
// log output.
package panel

import (
	"fmt"
	"sync"

	"github.com/jroimartin/gocui"

	"github.com/ezrec/lc3sim/io"
	"github.com/ezrec/lc3sim/machine"
)

// Control is a run control request from the keyboard.
type Control int

//go:generate go tool stringer -linecomment -type=Control
const (
	CONTROL_CONTINUE = Control(0) // continue
	CONTROL_STEP     = Control(1) // step
)

// Panel is a gocui front panel. It implements io.Console; the machine
// runs in its own goroutine while gocui's main loop owns the terminal.
//
// Key bindings:
//   - F5 requests continue
//   - F10 requests a single step
//   - Ctrl-C closes the panel
//
// All other keys feed the machine's keyboard.
type Panel struct {
	Machine *machine.Machine

	gui      *gocui.Gui
	keys     chan byte
	controls chan Control
	done     chan struct{}
	blocking bool

	mu      sync.Mutex
	pending map[string]string
}

var _ io.Console = (*Panel)(nil)

// New creates the panel and takes over the terminal until Close.
func New(m *machine.Machine) (p *Panel, err error) {
	gui, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return
	}

	p = &Panel{
		Machine:  m,
		gui:      gui,
		keys:     make(chan byte, 64),
		controls: make(chan Control, 1),
		done:     make(chan struct{}),
		pending:  map[string]string{},
	}

	gui.Cursor = true
	gui.SetManagerFunc(p.layout)

	err = gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, p.quit)
	if err == nil {
		err = gui.SetKeybinding("", gocui.KeyF5, gocui.ModNone, p.control(CONTROL_CONTINUE))
	}
	if err == nil {
		err = gui.SetKeybinding("", gocui.KeyF10, gocui.ModNone, p.control(CONTROL_STEP))
	}
	if err != nil {
		gui.Close()
		p = nil
		return
	}

	return
}

// Run drives the interface until the panel is closed. It must be called
// from the main goroutine.
func (p *Panel) Run() (err error) {
	defer p.gui.Close()

	err = p.gui.MainLoop()
	if err == gocui.ErrQuit {
		err = nil
	}
	return
}

// Done is closed when the operator quits the panel.
func (p *Panel) Done() <-chan struct{} {
	return p.done
}

// Controls delivers run control requests from the keyboard.
func (p *Panel) Controls() <-chan Control {
	return p.controls
}

// layout carves the screen into the console, register, and status views.
func (p *Panel) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView("console", 0, 0, maxX-1, maxY-12); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Console"
		v.Autoscroll = true
		v.Wrap = true
		v.Editable = true
		v.Editor = gocui.EditorFunc(
			func(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
				p.pressKey(key, ch)
			})
		if _, err := g.SetCurrentView("console"); err != nil {
			return err
		}
	}

	if v, err := g.SetView("registers", 0, maxY-11, maxX-1, maxY-5); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Registers"
	}

	if v, err := g.SetView("status", 0, maxY-4, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Autoscroll = true
		v.Wrap = true
	}

	return nil
}

func (p *Panel) quit(g *gocui.Gui, v *gocui.View) error {
	p.Close()
	return gocui.ErrQuit
}

func (p *Panel) control(c Control) func(g *gocui.Gui, v *gocui.View) error {
	return func(g *gocui.Gui, v *gocui.View) error {
		select {
		case p.controls <- c:
		default:
		}
		return nil
	}
}

// Close releases the machine side of the panel. Safe to call more than
// once.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// pressKey translates a gocui keystroke to a console byte. The byte is
// dropped if the keyboard buffer is full.
func (p *Panel) pressKey(key gocui.Key, ch rune) {
	c, ok := keyByte(key, ch)
	if !ok {
		return
	}

	select {
	case p.keys <- c:
	default:
	}
}

// keyByte maps a keystroke to its console byte. Enter is delivered as a
// newline, matching a raw terminal with CR translation. Keys with no
// ASCII representation are ignored.
func keyByte(key gocui.Key, ch rune) (c byte, ok bool) {
	switch {
	case key == gocui.KeyEnter:
		c = '\n'
	case ch != 0 && ch < 0x80:
		c = byte(ch)
	case ch == 0 && key > 0 && key < 0x80:
		c = byte(key)
	default:
		return
	}
	ok = true
	return
}

// ReadByte implements io.Console from the keyboard buffer.
func (p *Panel) ReadByte() (c byte, err error) {
	if p.blocking {
		select {
		case c = <-p.keys:
		case <-p.done:
			err = io.ErrClosed
		}
		return
	}

	select {
	case c = <-p.keys:
	case <-p.done:
		err = io.ErrClosed
	default:
		err = io.ErrNoInput
	}
	return
}

// WriteByte implements io.Console onto the console view.
func (p *Panel) WriteByte(c byte) error {
	select {
	case <-p.done:
		return io.ErrClosed
	default:
	}

	p.write("console", string(rune(c)))
	return nil
}

// SetBlocking implements io.Console.
func (p *Panel) SetBlocking(on bool) error {
	p.blocking = on
	return nil
}

// Status returns a writer that appends to the status view. It is meant
// as a log output.
func (p *Panel) Status() *ViewWriter {
	return &ViewWriter{panel: p, view: "status"}
}

// Refresh redraws the register view. Call it from the goroutine that
// steps the machine, so the register snapshot is consistent.
func (p *Panel) Refresh() {
	m := p.Machine

	text := m.String()
	text += fmt.Sprintf("0x%04X: %v", m.PC, machine.Instruction(m.Mem[m.PC]))
	if m.Halted {
		text += "  (halted)"
	}

	p.mu.Lock()
	p.pending["registers"] = "\x00" + text
	p.mu.Unlock()
	p.gui.Update(p.flushPending)
}

// write queues text for a view. Queued text is applied in order by the
// gocui event loop; views may only be touched from there.
func (p *Panel) write(view, text string) {
	p.mu.Lock()
	p.pending[view] += text
	p.mu.Unlock()
	p.gui.Update(p.flushPending)
}

// flushPending drains the queued text into the views. A leading NUL
// marks a full redraw rather than an append.
func (p *Panel) flushPending(g *gocui.Gui) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = map[string]string{}
	p.mu.Unlock()

	for name, text := range pending {
		v, err := g.View(name)
		if err != nil {
			continue
		}
		if len(text) > 0 && text[0] == 0 {
			v.Clear()
			text = text[1:]
		}
		fmt.Fprint(v, text)
	}
	return nil
}

// ViewWriter appends to a named panel view.
type ViewWriter struct {
	panel *Panel
	view  string
}

func (w *ViewWriter) Write(b []byte) (n int, err error) {
	w.panel.write(w.view, string(b))
	n = len(b)
	return
}
