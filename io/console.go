// Package io provides console implementations for the LC-3 simulator.
// The machine's memory-mapped keyboard and display registers delegate to a
// Console: Stream adapts arbitrary byte readers and writers (tests, pipes),
// and Term drives the controlling terminal in raw mode.
package io

// Console is one character device: a keyboard source and a display sink.
type Console interface {
	// ReadByte returns one keyboard byte. In blocking mode it waits for
	// input; otherwise it returns ErrNoInput when none is pending.
	ReadByte() (c byte, err error)
	// WriteByte emits one byte to the display.
	WriteByte(c byte) error
	// SetBlocking switches ReadByte between waiting and polling.
	SetBlocking(on bool) error
}
