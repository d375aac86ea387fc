//go:build linux || darwin

package io

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

var _ Console = (*Term)(nil)

// Term is a Console on the controlling terminal. Open places the terminal
// in raw mode (no echo, no line buffering, polling reads) and Close
// restores the saved state.
type Term struct {
	in      *os.File
	out     *os.File
	restore unix.Termios
	raw     unix.Termios
}

// Open switches the terminal to raw mode and returns its console.
func Open() (t *Term, err error) {
	t = &Term{in: os.Stdin, out: os.Stdout}

	termios, err := unix.IoctlGetTermios(int(t.in.Fd()), ioctlGetTermios)
	if err != nil {
		return
	}

	t.restore = *termios

	t.raw = *termios
	t.raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.INLCR
	t.raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.IEXTEN
	t.raw.Cflag &^= unix.CSIZE | unix.PARENB
	t.raw.Cflag |= unix.CS8
	t.raw.Cc[unix.VMIN] = 0
	t.raw.Cc[unix.VTIME] = 0

	err = unix.IoctlSetTermios(int(t.in.Fd()), ioctlSetTermios, &t.raw)
	return
}

// Close restores the terminal state captured by Open.
func (t *Term) Close() error {
	return t.Suspend()
}

// Suspend restores the saved terminal state without closing the console,
// so line-oriented input works again.
func (t *Term) Suspend() error {
	return unix.IoctlSetTermios(int(t.in.Fd()), ioctlSetTermios, &t.restore)
}

// Resume re-enters raw mode after a Suspend.
func (t *Term) Resume() error {
	return unix.IoctlSetTermios(int(t.in.Fd()), ioctlSetTermios, &t.raw)
}

// ReadByte returns one keyboard byte, or ErrNoInput when polling an idle
// keyboard.
func (t *Term) ReadByte() (c byte, err error) {
	var one [1]byte
	n, err := t.in.Read(one[:])
	if err != nil {
		if err == io.EOF && t.raw.Cc[unix.VMIN] == 0 {
			err = ErrNoInput
		}
		return
	}
	if n == 0 {
		err = ErrNoInput
		return
	}

	c = one[0]
	return
}

// WriteByte emits one byte to the terminal.
func (t *Term) WriteByte(c byte) (err error) {
	_, err = t.out.Write([]byte{c})
	return
}

// SetBlocking selects between waiting reads (VMIN 1) and polling reads
// (VMIN 0).
func (t *Term) SetBlocking(on bool) (err error) {
	if on {
		t.raw.Cc[unix.VMIN] = 1
	} else {
		t.raw.Cc[unix.VMIN] = 0
	}
	return unix.IoctlSetTermios(int(t.in.Fd()), ioctlSetTermios, &t.raw)
}
