// Package monitor attaches execution diagnostics to a machine:
// breakpoints, optionally guarded by condition expressions over the
// register state, and memory watchpoints. The monitor latches a break
// request that the run loop consumes between steps.
package monitor

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ezrec/lc3sim/machine"
)

// Kind selects which accesses a watchpoint observes.
type Kind int

//go:generate go tool stringer -linecomment -type=Kind
const (
	WATCH_READ      = Kind(0) // read
	WATCH_WRITE     = Kind(1) // write
	WATCH_READWRITE = Kind(2) // readwrite
)

// Breakpoint pauses execution before an instruction address. A nonempty
// Cond expression must also evaluate true for the breakpoint to fire.
type Breakpoint struct {
	Addr uint16
	Cond string
}

// Watchpoint pauses execution when a memory address is accessed.
// Instruction fetch counts as a read.
type Watchpoint struct {
	Addr uint16
	Kind Kind
}

// Monitor implements machine.Debugger. Hits latch Break until Resume;
// the first cause per pause wins.
type Monitor struct {
	Breakpoints []Breakpoint
	Watchpoints []Watchpoint
	Cond        string // Global break condition, checked after every step.

	Break  bool   // Latched break request.
	Reason string // Cause of the latched break.
	Err    error  // Condition evaluation failure, if that is the cause.
}

var _ machine.Debugger = (*Monitor)(nil)

// Resume clears the latched break.
func (mon *Monitor) Resume() {
	mon.Break = false
	mon.Reason = ""
	mon.Err = nil
}

func (mon *Monitor) latch(reason string, err error) {
	if mon.Break {
		return
	}
	mon.Break = true
	mon.Reason = reason
	mon.Err = err
}

// Check latches a break if the next instruction address is a breakpoint,
// or if the global condition holds. The run loop calls it once before
// stepping begins; afterward the Step hook keeps it current. A condition
// that fails to evaluate latches a break carrying the failure.
func (mon *Monitor) Check(m *machine.Machine) {
	for _, bp := range mon.Breakpoints {
		if bp.Addr != m.PC {
			continue
		}
		hit, err := evalCond(bp.Cond, m)
		if err != nil {
			mon.latch(fmt.Sprintf("breakpoint at 0x%04x: %v", bp.Addr, err), err)
			continue
		}
		if hit {
			mon.latch(fmt.Sprintf("breakpoint at 0x%04x", bp.Addr), nil)
		}
	}

	if mon.Cond != "" {
		hit, err := evalCond(mon.Cond, m)
		if err != nil {
			mon.latch(fmt.Sprintf("condition: %v", err), err)
			return
		}
		if hit {
			mon.latch(fmt.Sprintf("condition '%v'", mon.Cond), nil)
		}
	}
}

// Step implements machine.Debugger by checking the next instruction.
func (mon *Monitor) Step(m *machine.Machine) {
	mon.Check(m)
}

// Read implements the read watchpoints.
func (mon *Monitor) Read(addr uint16, m *machine.Machine) {
	for _, wp := range mon.Watchpoints {
		if wp.Addr == addr && wp.Kind != WATCH_WRITE {
			mon.latch(fmt.Sprintf("read watchpoint at 0x%04x", addr), nil)
		}
	}
}

// Write implements the write watchpoints.
func (mon *Monitor) Write(addr uint16, m *machine.Machine) {
	for _, wp := range mon.Watchpoints {
		if wp.Addr == addr && wp.Kind != WATCH_READ {
			mon.latch(fmt.Sprintf("write watchpoint at 0x%04x", addr), nil)
		}
	}
}

// evalCond evaluates a break condition against the machine state. The
// registers are predeclared as r0 through r7, along with pc and ir as
// integers and the condition code cc as its letter. An empty expression
// is unconditionally true.
func evalCond(expr string, m *machine.Machine) (hit bool, err error) {
	if expr == "" {
		hit = true
		return
	}

	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for n, value := range m.Register {
		pred[fmt.Sprintf("r%d", n)] = starlark.MakeInt(int(value))
	}
	pred["pc"] = starlark.MakeInt(int(m.PC))
	pred["ir"] = starlark.MakeInt(int(uint16(m.IR)))
	pred["cc"] = starlark.String(m.CC.String())

	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "cond", prog, pred)
	if err != nil {
		err = errors.Join(ErrExpression(expr), err)
		return
	}

	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrExpression(expr)
		return
	}

	hit = bool(st_rc.Truth())
	return
}
