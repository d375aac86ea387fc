package machine

import (
	"errors"
)

// MEM_SIZE is the number of 16-bit words in the flat address space.
const MEM_SIZE = 1 << 16

// Reserved device register addresses, aliased onto the flat memory.
const (
	KBSR = uint16(0xFE00) // Keyboard status register.
	KBDR = uint16(0xFE02) // Keyboard data register.
	DSR  = uint16(0xFE04) // Display status register.
	DDR  = uint16(0xFE06) // Display data register.
	MCR  = uint16(0xFFFE) // Machine control register.
)

// DEV_READY is the status value forced into KBSR and DSR after every step.
const DEV_READY = uint16(0x8000)

// read returns the word at addr. A read of the keyboard data register is
// intercepted: it blocks for one console byte and bypasses the cell.
func (m *Machine) read(con Console, addr uint16) (value uint16, err error) {
	if addr == KBDR {
		value, err = m.readKey(con)
		if err != nil {
			return
		}
	} else {
		value = m.Mem[addr]
	}

	if m.Debugger != nil {
		m.Debugger.Read(addr, m)
	}
	return
}

// readKey blocks for a single keyboard byte, restoring the console to
// polling mode afterward.
func (m *Machine) readKey(con Console) (value uint16, err error) {
	err = con.SetBlocking(true)
	if err != nil {
		err = errors.Join(ErrConsole, err)
		return
	}

	c, err := con.ReadByte()
	if err != nil {
		err = errors.Join(ErrConsole, err)
		return
	}

	err = con.SetBlocking(false)
	if err != nil {
		err = errors.Join(ErrConsole, err)
		return
	}

	value = uint16(c)
	return
}

// write stores value at addr. A store to the machine control register
// additionally halts the machine.
func (m *Machine) write(addr, value uint16) {
	m.Mem[addr] = value
	if addr == MCR {
		m.Halted = true
	}

	if m.Debugger != nil {
		m.Debugger.Write(addr, m)
	}
}

// flush is the device post-processing run after every executed
// instruction: drain a pending display byte to the console, then force
// the status registers ready. Device housekeeping does not fire the
// Debugger hooks.
func (m *Machine) flush(con Console) (err error) {
	if m.Mem[DDR] != 0 {
		err = con.WriteByte(byte(m.Mem[DDR] & 0xff))
		if err != nil {
			err = errors.Join(ErrConsole, err)
			return
		}
		m.Mem[DDR] = 0
	}

	m.Mem[KBSR] = DEV_READY
	m.Mem[DSR] = DEV_READY
	return
}
