package io

import (
	"io"
)

var _ Console = (*Stream)(nil)

// Stream is a Console over plain byte streams. Tests script it with fixed
// readers and writers; headless runs wire it to stdin and stdout.
type Stream struct {
	Input  io.Reader
	Output io.Writer

	blocking bool
}

// ReadByte returns the next byte of Input. Reader semantics already wait
// for data, so the mode toggle only changes how an exhausted Input is
// reported: ErrNoInput when polling, the reader's error when blocking.
func (st *Stream) ReadByte() (c byte, err error) {
	if st.Input == nil {
		err = ErrClosed
		return
	}

	var one [1]byte
	_, err = io.ReadFull(st.Input, one[:])
	if err != nil {
		if !st.blocking && err == io.EOF {
			err = ErrNoInput
		}
		return
	}

	c = one[0]
	return
}

// WriteByte emits one byte to Output.
func (st *Stream) WriteByte(c byte) (err error) {
	if st.Output == nil {
		err = ErrClosed
		return
	}

	_, err = st.Output.Write([]byte{c})
	return
}

// SetBlocking selects how ReadByte reports an exhausted Input.
func (st *Stream) SetBlocking(on bool) error {
	st.blocking = on
	return nil
}
