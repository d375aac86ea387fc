package machine

import (
	"encoding/binary"
	"iter"
	"log"
)

// Line is one assembled source line: the expanded words it was parsed
// from, the data words it produced, and an optional label reference
// left to resolve once every address is known.
type Line struct {
	LineNo int      // Line number of the source line.
	Addr   uint16   // Load address of the first data word.
	Words  []string // Expanded words of the source line.
	Data   []uint16 // Assembled data words.
	Link   string   // Label the last data word refers to.
	Bits   uint     // Width of the link field; 16 is absolute.
}

// Program is an assembled program, ready to load or to save as an
// object image.
type Program struct {
	Origin uint16 // Load address of the first word.
	Lines  []Line // Assembled lines, in address order.
}

// Debug ties an address back to its source line.
type Debug struct {
	*Line
	Index int
}

// Debug returns the source line covering addr, if any.
func (prog *Program) Debug(addr uint16) (dbg Debug) {
	for n := range prog.Lines {
		line := &prog.Lines[n]
		if addr >= line.Addr && addr < line.Addr+uint16(len(line.Data)) {
			dbg = Debug{
				Line:  line,
				Index: int(addr - line.Addr),
			}
			break
		}
	}

	return
}

// Size returns the number of assembled words.
func (prog *Program) Size() (size int) {
	for _, line := range prog.Lines {
		size += len(line.Data)
	}

	return
}

// Words iterates the assembled words in address order.
func (prog *Program) Words() iter.Seq2[uint16, uint16] {
	return func(yield func(addr, value uint16) bool) {
		for _, line := range prog.Lines {
			for n, value := range line.Data {
				if !yield(line.Addr+uint16(n), value) {
					return
				}
			}
		}
	}
}

// Image returns the program as an object image: a big-endian origin
// word followed by the big-endian data words.
func (prog *Program) Image() (image []byte) {
	image = binary.BigEndian.AppendUint16(image, prog.Origin)
	for _, value := range prog.Words() {
		image = binary.BigEndian.AppendUint16(image, value)
	}

	return
}

// LoadProgram resets the machine and loads an assembled program. The
// PC is left at the program origin.
func (m *Machine) LoadProgram(prog *Program) {
	m.Reset()

	for addr, value := range prog.Words() {
		m.Mem[addr] = value
	}

	m.PC = prog.Origin

	if m.Verbose {
		log.Printf("machine: loaded %d words at 0x%04x", prog.Size(), prog.Origin)
	}
}
