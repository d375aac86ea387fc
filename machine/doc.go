// Package machine implements the LC-3 instruction cycle simulator.
//
// The machine consists of eight 16-bit general-purpose registers (R0-R7),
// a program counter, an instruction register, a 3-valued condition code
// (N/Z/P), and a flat 64Ki-word memory with the console device registers
// aliased onto it. Each Step fetches, decodes, and executes one
// instruction, then runs the device post-processing that drains the
// display data register and forces the status registers ready.
//
// Keyboard input and display output are delegated to an injected Console:
// a read of KBDR blocks for one console byte, and a store to MCR halts
// the machine. All address arithmetic wraps modulo 2^16.
package machine
