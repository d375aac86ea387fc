package machine

import (
	"encoding/binary"
	"io"
	"log"
)

// LoadImage resets the machine and loads an LC-3 object image: a
// big-endian origin word followed by big-endian data words placed at
// consecutive addresses. The PC is left at the origin.
func (m *Machine) LoadImage(r io.Reader) (err error) {
	m.Reset()

	data, err := io.ReadAll(r)
	if err != nil {
		return
	}

	if len(data) < 2 || len(data)%2 != 0 {
		err = ErrImageTruncated
		return
	}

	origin := binary.BigEndian.Uint16(data[0:2])
	words := (len(data) - 2) / 2

	if int(origin)+words > MEM_SIZE {
		err = ErrImageTooLarge
		return
	}

	for n := range words {
		m.Mem[int(origin)+n] = binary.BigEndian.Uint16(data[2+n*2:])
	}

	m.PC = origin

	if m.Verbose {
		log.Printf("machine: loaded %d words at 0x%04x", words, origin)
	}
	return
}
