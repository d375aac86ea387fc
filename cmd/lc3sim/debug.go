// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ezrec/lc3sim/io"
	"github.com/ezrec/lc3sim/machine"
	"github.com/ezrec/lc3sim/monitor"
)

// prompt runs the break shell until the operator continues or quits.
// It reports true when the simulator should exit. The terminal leaves
// raw mode for the duration of the shell.
func prompt(m *machine.Machine, mon *monitor.Monitor, con io.Console, prog *machine.Program) (quit bool) {
	if term, ok := con.(*io.Term); ok {
		term.Suspend()
		defer term.Resume()
	}

	fmt.Printf("stopped: %v\n", mon.Reason)
	show(m, prog)

	scanner := bufio.NewScanner(os.Stdin)
	var lastcmd []string

	for {
		fmt.Print("(lc3) ")
		if !scanner.Scan() {
			fmt.Println()
			quit = true
			return
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			if len(lastcmd) == 0 {
				continue
			}
			args = lastcmd
		} else {
			lastcmd = args
		}

		switch args[0] {
		case "c", "continue":
			mon.Resume()
			return

		case "s", "step":
			count := 1
			if len(args) > 1 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					fmt.Println(err)
					continue
				}
				count = n
			}

			mon.Resume()
			for n := 0; n < count && !m.Halted; n++ {
				if err := m.Step(con); err != nil {
					fmt.Println(err)
					break
				}
				if mon.Break {
					fmt.Printf("stopped: %v\n", mon.Reason)
					break
				}
			}
			if m.Halted {
				fmt.Printf("halted after %d steps\n", m.Steps)
			}
			show(m, prog)

		case "r", "regs", "registers":
			show(m, prog)

		case "m", "mem", "memory":
			if len(args) < 2 {
				fmt.Println("memory 0x#### [count]")
				continue
			}
			addr, err := parseAddr(args[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			count := 1
			if len(args) > 2 {
				count, err = strconv.Atoi(args[2])
				if err != nil {
					fmt.Println(err)
					continue
				}
			}
			printMem(m, addr, count)

		case "q", "quit", "exit":
			quit = true
			return

		default:
			fmt.Printf("'%v' is not a command (continue, step, registers, memory, quit)\n", args[0])
		}
	}
}

// show prints the register block, the next instruction, and its source
// line when the program was assembled in this run.
func show(m *machine.Machine, prog *machine.Program) {
	fmt.Print(m)
	fmt.Printf("0x%04X: %v\n", m.PC, machine.Instruction(m.Mem[m.PC]))
	if src := source(prog, m.PC); src != "" {
		fmt.Println(src)
	}
}

// printMem dumps words of memory, eight per line. A single word is also
// disassembled.
func printMem(m *machine.Machine, addr uint16, count int) {
	if count == 1 {
		word := m.Mem[addr]
		fmt.Printf("0x%04X: 0x%04X  %v\n", addr, word, machine.Instruction(word))
		return
	}

	for n := 0; n < count; n++ {
		if n%8 == 0 {
			if n > 0 {
				fmt.Println()
			}
			fmt.Printf("0x%04X:", addr+uint16(n))
		}
		fmt.Printf(" %04x", m.Mem[addr+uint16(n)])
	}
	fmt.Println()
}
