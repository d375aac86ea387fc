package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func FuzzStep(f *testing.F) {
	for op := range 16 {
		f.Add(uint16(op<<12), uint16(0x1234), uint16(0x8000))
		f.Add(uint16(op<<12)|0x0fff, uint16(0xffff), uint16(0x0001))
	}
	// Base registers aimed at the device block.
	f.Add(uint16(MakeLdr(0, 1, 0)), KBDR, DDR)
	f.Add(uint16(MakeStr(0, 1, 0)), MCR, KBSR)

	f.Fuzz(func(t *testing.T, word, r1, r2 uint16) {
		assert := assert.New(t)

		m := NewMachine()
		m.Register[1] = r1
		m.Register[2] = r2
		m.Mem[m.PC] = word

		con := &mockConsole{input: []byte("AAAAAAAA")}
		err := m.Step(con)

		assert.NoError(err, "0x%04x %v", word, Instruction(word))
		assert.Equal(1, m.Steps)
		assert.Equal(DEV_READY, m.Mem[KBSR])
		assert.Equal(DEV_READY, m.Mem[DSR])
		assert.Equal(uint16(0), m.Mem[DDR], "the display register is always drained")
		assert.Contains([]Cond{CC_ZERO, CC_NEGATIVE, CC_POSITIVE}, m.CC)

		if !Instruction(word).Opcode().Sets() {
			assert.Equal(CC_ZERO, m.CC, "only the setters move the code")
		}

		if m.Halted {
			op := Instruction(word).Opcode()
			assert.Contains([]Opcode{OP_ST, OP_STI, OP_STR}, op, "only a store can halt")

			// A halted machine is inert.
			pc := m.PC
			register := m.Register
			steps := m.Steps
			output := len(con.output)

			err = m.Step(con)
			assert.NoError(err)
			assert.Equal(pc, m.PC)
			assert.Equal(register, m.Register)
			assert.Equal(steps, m.Steps)
			assert.Len(con.output, output)
		}
	})
}
