// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package machine

import (
	"errors"
	"fmt"
	"log"

	"github.com/ezrec/lc3sim/io"
)

// Console is the character device the memory-mapped keyboard and display
// registers delegate to.
type Console io.Console

// Debugger observes machine activity. All hooks run synchronously inside
// Step.
type Debugger interface {
	// Step runs after an instruction cycle completes.
	Step(m *Machine)
	// Read runs after any memory read, including instruction fetch.
	Read(addr uint16, m *Machine)
	// Write runs after any memory write.
	Write(addr uint16, m *Machine)
}

// PC_START is the program counter value after a reset.
const PC_START = uint16(0x3000)

// Machine is the simulation context for one LC-3 processor.
type Machine struct {
	Verbose bool // Set to enable verbose logging.
	Strict  bool // Set to report unimplemented encodings instead of ignoring them.

	Register [8]uint16   // General purpose register bank.
	PC       uint16      // Program counter.
	IR       Instruction // Currently executing instruction.
	CC       Cond        // Condition code.
	Halted   bool        // Set by a store to MCR; never cleared by Step.

	Mem [MEM_SIZE]uint16 // Flat memory, device registers aliased in.

	Steps int // Instruction cycles since reset.

	Debugger Debugger // Optional activity hooks.
}

// NewMachine creates a machine in its power-on state.
func NewMachine() (m *Machine) {
	m = &Machine{}
	m.Reset()
	return
}

// Reset returns the machine to its power-on state.
// - Clears the registers and memory.
// - Sets the PC to PC_START and the condition code to Zero.
// - Clears the halt latch and the cycle counter.
// - Marks the device status registers ready.
func (m *Machine) Reset() {
	if m.Verbose {
		log.Printf("machine: reset")
	}

	clear(m.Register[:])
	clear(m.Mem[:])
	m.PC = PC_START
	m.IR = 0
	m.CC = CC_ZERO
	m.Halted = false
	m.Steps = 0

	m.Mem[KBSR] = DEV_READY
	m.Mem[DSR] = DEV_READY
}

// String returns the current machine state as a register display block.
func (m *Machine) String() (text string) {
	for n := range 4 {
		text += fmt.Sprintf("R%d 0x%04X %6d    R%d 0x%04X %6d\n",
			n, m.Register[n], int16(m.Register[n]),
			n+4, m.Register[n+4], int16(m.Register[n+4]))
	}
	text += fmt.Sprintf("PC 0x%04X  CC %v  IR 0x%04X %v\n",
		m.PC, m.CC, uint16(m.IR), m.IR)
	return
}

// Step executes a single instruction cycle: fetch, decode, execute, then
// the device post-processing. A halted machine ignores Step.
func (m *Machine) Step(con Console) (err error) {
	if m.Halted {
		return
	}

	pc := m.PC
	fetched, err := m.read(con, pc)
	if err != nil {
		return
	}
	m.IR = Instruction(fetched)
	m.PC++

	if m.Verbose {
		log.Printf("%04x: %v", pc, m.IR)
	}

	op := m.IR.Opcode()
	switch op {
	case OP_ADD, OP_AND:
		dr, sr1, imm, sr2, imm5 := m.IR.AluDecode()
		a := m.Register[sr1]
		b := m.Register[sr2]
		if imm {
			b = imm5
		}
		var value uint16
		switch op {
		case OP_ADD:
			value = a + b
		case OP_AND:
			value = a & b
		}
		m.Register[dr] = value
		m.CC = Setcc(value)

	case OP_NOT:
		dr, sr1, _, _, _ := m.IR.AluDecode()
		value := ^m.Register[sr1]
		m.Register[dr] = value
		m.CC = Setcc(value)

	case OP_BR:
		n, z, p, offset9 := m.IR.BrDecode()
		if (n && m.CC == CC_NEGATIVE) || (z && m.CC == CC_ZERO) || (p && m.CC == CC_POSITIVE) {
			m.PC += offset9
		}

	case OP_JMP:
		m.PC = m.Register[m.IR.JmpDecode()]

	case OP_JSR:
		// The return address is saved before the base register is read,
		// so a JSRR through R7 jumps to the saved address.
		long, offset11, base := m.IR.JsrDecode()
		m.Register[7] = m.PC
		if long {
			m.PC += offset11
		} else {
			m.PC = m.Register[base]
		}

	case OP_LD:
		dr, offset9 := m.IR.PcDecode()
		var value uint16
		value, err = m.read(con, m.PC+offset9)
		if err != nil {
			return
		}
		m.Register[dr] = value
		m.CC = Setcc(value)

	case OP_LDI:
		dr, offset9 := m.IR.PcDecode()
		var addr uint16
		addr, err = m.read(con, m.PC+offset9)
		if err != nil {
			return
		}
		var value uint16
		value, err = m.read(con, addr)
		if err != nil {
			return
		}
		m.Register[dr] = value
		m.CC = Setcc(value)

	case OP_LDR:
		dr, base, offset6 := m.IR.BaseDecode()
		var value uint16
		value, err = m.read(con, m.Register[base]+offset6)
		if err != nil {
			return
		}
		m.Register[dr] = value
		m.CC = Setcc(value)

	case OP_LEA:
		dr, offset9 := m.IR.PcDecode()
		value := m.PC + offset9
		m.Register[dr] = value
		m.CC = Setcc(value)

	case OP_ST:
		sr, offset9 := m.IR.PcDecode()
		m.write(m.PC+offset9, m.Register[sr])

	case OP_STI:
		sr, offset9 := m.IR.PcDecode()
		var addr uint16
		addr, err = m.read(con, m.PC+offset9)
		if err != nil {
			return
		}
		m.write(addr, m.Register[sr])

	case OP_STR:
		sr, base, offset6 := m.IR.BaseDecode()
		m.write(m.Register[base]+offset6, m.Register[sr])

	case OP_TRAP:
		m.Register[7] = m.PC
		var target uint16
		target, err = m.read(con, m.IR.TrapDecode())
		if err != nil {
			return
		}
		m.PC = target

	case OP_RTI, OP_RES:
		// Unimplemented encodings execute as no-ops.
		if m.Strict {
			err = ErrUnimplemented(m.IR)
		}
	}

	if ferr := m.flush(con); ferr != nil {
		err = errors.Join(err, ferr)
		return
	}

	m.Steps++

	if m.Debugger != nil {
		m.Debugger.Step(m)
	}

	return
}
