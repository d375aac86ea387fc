// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package machine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errNoKey = errors.New("no key")

// mockConsole scripts keyboard input and records display output and
// blocking mode changes.
type mockConsole struct {
	input    []byte
	output   []byte
	blocking bool
	blocks   []bool
	reads    int
}

func (mc *mockConsole) ReadByte() (c byte, err error) {
	if len(mc.input) == 0 {
		err = errNoKey
		return
	}
	c = mc.input[0]
	mc.input = mc.input[1:]
	mc.reads++
	return
}

func (mc *mockConsole) WriteByte(c byte) error {
	mc.output = append(mc.output, c)
	return nil
}

func (mc *mockConsole) SetBlocking(on bool) error {
	mc.blocking = on
	mc.blocks = append(mc.blocks, on)
	return nil
}

type mockDebugger struct {
	steps  int
	reads  []uint16
	writes []uint16
}

func (md *mockDebugger) Step(m *Machine)              { md.steps++ }
func (md *mockDebugger) Read(addr uint16, m *Machine) { md.reads = append(md.reads, addr) }
func (md *mockDebugger) Write(addr uint16, m *Machine) {
	md.writes = append(md.writes, addr)
}

func TestMachine_Reset(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Register[3] = 0x1234
	m.PC = 0x4444
	m.CC = CC_NEGATIVE
	m.Halted = true
	m.Steps = 7
	m.Mem[0x3000] = 0xbeef

	m.Reset()

	assert.Equal([8]uint16{}, m.Register)
	assert.Equal(PC_START, m.PC)
	assert.Equal(CC_ZERO, m.CC)
	assert.False(m.Halted)
	assert.Equal(0, m.Steps)
	assert.Equal(uint16(0), m.Mem[0x3000])
	assert.Equal(DEV_READY, m.Mem[KBSR])
	assert.Equal(DEV_READY, m.Mem[DSR])
}

func TestStep_Operate(t *testing.T) {
	assert := assert.New(t)

	tests := []struct {
		name string
		ir   Instruction
		regs map[int]uint16
		dr   int
		want uint16
		cc   Cond
	}{
		{"add register", Instruction(0x1042), map[int]uint16{1: 5, 2: 2}, 0, 7, CC_POSITIVE},
		{"add immediate", MakeAddImm(3, 1, 2), map[int]uint16{1: 5}, 3, 7, CC_POSITIVE},
		{"add negative immediate", MakeAddImm(0, 1, -1), map[int]uint16{1: 0}, 0, 0xffff, CC_NEGATIVE},
		{"add to zero", MakeAddImm(0, 1, -1), map[int]uint16{1: 1}, 0, 0, CC_ZERO},
		{"add wraps", MakeAddImm(0, 1, 1), map[int]uint16{1: 0xffff}, 0, 0, CC_ZERO},
		{"and register", Instruction(0x5183), map[int]uint16{6: 0x0f0f, 3: 0x00ff}, 0, 0x000f, CC_POSITIVE},
		{"and immediate", MakeAndImm(2, 2, 0x0f), map[int]uint16{2: 0x1234}, 2, 0x0004, CC_POSITIVE},
		{"and clears", MakeAnd(5, 5, 4), map[int]uint16{5: 0xaaaa, 4: 0x5555}, 5, 0, CC_ZERO},
		{"not", MakeNot(0, 1), map[int]uint16{1: 0x0f0f}, 0, 0xf0f0, CC_NEGATIVE},
		{"not zero", MakeNot(7, 6), map[int]uint16{6: 0xffff}, 7, 0, CC_ZERO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for n, value := range tt.regs {
				m.Register[n] = value
			}
			m.Mem[m.PC] = uint16(tt.ir)

			err := m.Step(&mockConsole{})
			assert.NoError(err)
			assert.Equal(tt.want, m.Register[tt.dr])
			assert.Equal(tt.cc, m.CC)
			assert.Equal(PC_START+1, m.PC)
			assert.Equal(1, m.Steps)
		})
	}
}

func TestStep_Branch(t *testing.T) {
	assert := assert.New(t)

	codes := []Cond{CC_NEGATIVE, CC_ZERO, CC_POSITIVE}

	for mask := range 8 {
		n := (mask & 4) != 0
		z := (mask & 2) != 0
		p := (mask & 1) != 0

		for _, cc := range codes {
			m := NewMachine()
			m.CC = cc
			m.Mem[m.PC] = uint16(MakeBr(n, z, p, 0x10))

			taken := (n && cc == CC_NEGATIVE) || (z && cc == CC_ZERO) || (p && cc == CC_POSITIVE)
			expected := PC_START + 1
			if taken {
				expected += 0x10
			}

			err := m.Step(&mockConsole{})
			assert.NoError(err)
			assert.Equal(expected, m.PC, "mask %03b cc %v", mask, cc)
			assert.Equal(cc, m.CC, "branches leave the code alone")
		}
	}
}

func TestStep_Branch_Backward(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.CC = CC_ZERO
	m.Mem[m.PC] = uint16(MakeBr(false, true, false, -2))

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(PC_START-1, m.PC)
}

func TestStep_Jump(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Register[2] = 0x1234
	m.Mem[m.PC] = uint16(MakeJmp(2))

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x1234), m.PC)

	// RET is a jump through R7.
	m = NewMachine()
	m.Register[7] = 0x4444
	m.Mem[m.PC] = uint16(MakeJmp(7))

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x4444), m.PC)
}

func TestStep_Call(t *testing.T) {
	assert := assert.New(t)

	// JSR saves the return address and branches relative.
	m := NewMachine()
	m.Mem[m.PC] = uint16(MakeJsr(0x10))

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(PC_START+1, m.Register[7])
	assert.Equal(PC_START+1+0x10, m.PC)

	// JSRR branches through the base register.
	m = NewMachine()
	m.Register[2] = 0x4000
	m.Mem[m.PC] = uint16(MakeJsrr(2))

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(PC_START+1, m.Register[7])
	assert.Equal(uint16(0x4000), m.PC)

	// JSRR through R7 reads the register after the save, so it branches
	// to the saved return address.
	m = NewMachine()
	m.Register[7] = 0xdead
	m.Mem[m.PC] = uint16(MakeJsrr(7))

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(PC_START+1, m.Register[7])
	assert.Equal(PC_START+1, m.PC)
}

func TestStep_LoadStore(t *testing.T) {
	assert := assert.New(t)

	// LD is PC-relative.
	m := NewMachine()
	m.Mem[m.PC] = uint16(MakeLd(3, 3))
	m.Mem[0x3004] = 0xbeef

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0xbeef), m.Register[3])
	assert.Equal(CC_NEGATIVE, m.CC)

	// LDR is base plus signed offset.
	m = NewMachine()
	m.Register[4] = 0x3010
	m.Mem[m.PC] = uint16(MakeLdr(5, 4, -8))
	m.Mem[0x3008] = 0x0042

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x0042), m.Register[5])
	assert.Equal(CC_POSITIVE, m.CC)

	// LDI chases the pointer cell.
	m = NewMachine()
	m.Mem[m.PC] = uint16(MakeLdi(0, 1))
	m.Mem[0x3002] = 0x4000
	m.Mem[0x4000] = 0x8001

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x8001), m.Register[0])
	assert.Equal(CC_NEGATIVE, m.CC)

	// ST is PC-relative.
	m = NewMachine()
	m.Register[2] = 0xabcd
	m.Mem[m.PC] = uint16(MakeSt(2, 0x10))

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0xabcd), m.Mem[0x3011])

	// STI stores through the pointer cell.
	m = NewMachine()
	m.Register[3] = 7
	m.Mem[m.PC] = uint16(MakeSti(3, 1))
	m.Mem[0x3002] = 0x4000

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(7), m.Mem[0x4000])

	// STR is base plus signed offset.
	m = NewMachine()
	m.Register[1] = 0x5000
	m.Register[6] = 9
	m.Mem[m.PC] = uint16(MakeStr(6, 1, 2))

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(9), m.Mem[0x5002])
}

func TestStep_Lea(t *testing.T) {
	assert := assert.New(t)

	// Offset field 0x1ff extends to -1: from PC 0x3000 the address is
	// one behind the incremented PC.
	m := NewMachine()
	m.PC = 0x2fff
	m.Mem[m.PC] = uint16(MakeLea(0, -1))

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x3000), m.PC)
	assert.Equal(uint16(0x2fff), m.Register[0])
	assert.Equal(CC_POSITIVE, m.CC)

	// Offset field 0x100 extends to -256.
	m = NewMachine()
	m.Mem[m.PC] = uint16(MakeLea(1, -256))

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x3001-256), m.Register[1])
}

func TestStep_AddressWraparound(t *testing.T) {
	assert := assert.New(t)

	// Fetch at the top of memory wraps the PC to zero.
	m := NewMachine()
	m.PC = 0xffff
	m.Mem[0xffff] = uint16(MakeLea(0, 5))

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x0000), m.PC)
	assert.Equal(uint16(0x0005), m.Register[0])

	// A PC-relative address past the top wraps around.
	m = NewMachine()
	m.PC = 0xfffe
	m.Mem[0xfffe] = uint16(MakeLd(0, 4))
	m.Mem[0x0003] = 0x1111

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(uint16(0x1111), m.Register[0])
}

func TestStep_Keyboard(t *testing.T) {
	assert := assert.New(t)

	// An indirect load whose target is KBDR reads the console, not the
	// cell.
	m := NewMachine()
	m.Mem[m.PC] = uint16(MakeLdi(0, 1))
	m.Mem[0x3002] = KBDR
	m.Mem[KBDR] = 0x9999

	con := &mockConsole{input: []byte("A")}
	err := m.Step(con)
	assert.NoError(err)
	assert.Equal(uint16('A'), m.Register[0])
	assert.Equal(CC_POSITIVE, m.CC)
	assert.Equal(uint16(0x9999), m.Mem[KBDR], "backing cell is bypassed")
	assert.Equal([]bool{true, false}, con.blocks, "read blocks, then restores polling")
	assert.Equal(1, con.reads)

	// Any read of KBDR is intercepted, LDR included.
	m = NewMachine()
	m.Register[1] = KBDR
	m.Mem[m.PC] = uint16(MakeLdr(2, 1, 0))

	con = &mockConsole{input: []byte("B")}
	err = m.Step(con)
	assert.NoError(err)
	assert.Equal(uint16('B'), m.Register[2])
}

func TestStep_Keyboard_Starved(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Mem[m.PC] = uint16(MakeLdi(0, 1))
	m.Mem[0x3002] = KBDR

	err := m.Step(&mockConsole{})
	assert.ErrorIs(err, ErrConsole)
	assert.ErrorIs(err, errNoKey)
	assert.False(m.Halted)
}

func TestStep_Halt(t *testing.T) {
	assert := assert.New(t)

	// An indirect store to MCR halts and still writes the cell.
	m := NewMachine()
	m.Register[1] = 0x1234
	m.Mem[m.PC] = uint16(MakeSti(1, 1))
	m.Mem[0x3002] = MCR

	con := &mockConsole{}
	err := m.Step(con)
	assert.NoError(err)
	assert.True(m.Halted)
	assert.Equal(uint16(0x1234), m.Mem[MCR])
	assert.Equal(PC_START+1, m.PC)
	assert.Equal(DEV_READY, m.Mem[KBSR], "post-processing still runs on the halting step")

	// Any store to MCR halts, STR included.
	m = NewMachine()
	m.Register[1] = MCR
	m.Register[0] = 5
	m.Mem[m.PC] = uint16(MakeStr(0, 1, 0))

	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.True(m.Halted)
	assert.Equal(uint16(5), m.Mem[MCR])
}

func TestStep_AfterHalt(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Register[1] = 1
	m.Mem[m.PC] = uint16(MakeSti(1, 1))
	m.Mem[0x3002] = MCR

	con := &mockConsole{}
	err := m.Step(con)
	assert.NoError(err)
	assert.True(m.Halted)

	pc := m.PC
	steps := m.Steps
	register := m.Register
	m.Mem[DDR] = uint16('x')

	err = m.Step(con)
	assert.NoError(err)
	assert.Equal(pc, m.PC)
	assert.Equal(steps, m.Steps)
	assert.Equal(register, m.Register)
	assert.Equal(uint16('x'), m.Mem[DDR], "a halted machine does not flush")
	assert.Empty(con.output)
}

func TestStep_Display(t *testing.T) {
	assert := assert.New(t)

	// A store to DDR is drained to the console by the post-processing of
	// the same step, and the status registers are forced ready.
	m := NewMachine()
	m.Register[0] = uint16('H')
	m.Register[1] = DDR
	m.Mem[m.PC] = uint16(MakeStr(0, 1, 0))
	m.Mem[KBSR] = 0x1234
	m.Mem[DSR] = 0x5678

	con := &mockConsole{}
	err := m.Step(con)
	assert.NoError(err)
	assert.Equal([]byte("H"), con.output)
	assert.Equal(uint16(0), m.Mem[DDR])
	assert.Equal(DEV_READY, m.Mem[KBSR])
	assert.Equal(DEV_READY, m.Mem[DSR])

	// Only the low byte is emitted.
	m.Register[0] = 0x1f41
	m.Mem[m.PC] = uint16(MakeStr(0, 1, 0))

	err = m.Step(con)
	assert.NoError(err)
	assert.Equal([]byte("HA"), con.output)

	// A zero DDR emits nothing.
	m.Mem[m.PC] = uint16(MakeBr(false, false, false, 0))

	err = m.Step(con)
	assert.NoError(err)
	assert.Equal([]byte("HA"), con.output)
}

func TestStep_Display_Poked(t *testing.T) {
	assert := assert.New(t)

	// A value poked directly into the DDR cell is drained by the next
	// step, whatever the instruction.
	m := NewMachine()
	m.Mem[DDR] = 0x1f41
	m.Mem[m.PC] = uint16(MakeBr(false, false, false, 0))

	con := &mockConsole{}
	err := m.Step(con)
	assert.NoError(err)
	assert.Equal([]byte{0x41}, con.output)
	assert.Equal(uint16(0), m.Mem[DDR])
}

func TestStep_Trap(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Mem[m.PC] = uint16(MakeTrap(0x25))
	m.Mem[0x0025] = 0x0490

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(PC_START+1, m.Register[7])
	assert.Equal(uint16(0x0490), m.PC)
	assert.Equal(CC_ZERO, m.CC, "traps leave the code alone")
}

func TestStep_Unimplemented(t *testing.T) {
	assert := assert.New(t)

	for _, word := range []uint16{0x8000, 0xd000} {
		m := NewMachine()
		m.Mem[m.PC] = word
		m.Mem[KBSR] = 0x1234
		register := m.Register

		err := m.Step(&mockConsole{})
		assert.NoError(err)
		assert.Equal(register, m.Register, "0x%04x is a no-op", word)
		assert.Equal(PC_START+1, m.PC)
		assert.Equal(DEV_READY, m.Mem[KBSR], "post-processing still runs")
	}
}

func TestStep_Strict(t *testing.T) {
	assert := assert.New(t)

	for _, word := range []uint16{0x8000, 0xd000} {
		m := NewMachine()
		m.Strict = true
		m.Mem[m.PC] = word
		m.Mem[KBSR] = 0x1234

		err := m.Step(&mockConsole{})
		assert.ErrorIs(err, ErrUnimplemented(0))
		assert.Equal(PC_START+1, m.PC)
		assert.Equal(DEV_READY, m.Mem[KBSR], "post-processing still runs")
		assert.False(m.Halted)
	}
}

func TestStep_Debugger(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	md := &mockDebugger{}
	m.Debugger = md
	m.Register[1] = 5
	m.Register[2] = 2
	m.Mem[m.PC] = 0x1042

	err := m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(1, md.steps)
	assert.Equal([]uint16{PC_START}, md.reads, "fetch is a read")
	assert.Empty(md.writes)

	m.Mem[m.PC] = uint16(MakeSt(0, 5))
	err = m.Step(&mockConsole{})
	assert.NoError(err)
	assert.Equal(2, md.steps)
	assert.Equal([]uint16{0x3001 + 1 + 5}, md.writes)
}

func TestMachine_String(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Register[1] = 0xffff
	m.IR = Instruction(0x1042)

	text := m.String()
	assert.Contains(text, "R1 0xFFFF     -1")
	assert.Contains(text, "R0 0x0000      0")
	assert.Contains(text, "PC 0x3000")
	assert.Contains(text, "CC Z")
	assert.Contains(text, "ADD R0, R1, R2")
	assert.Equal(5, strings.Count(text, "\n"))
}
