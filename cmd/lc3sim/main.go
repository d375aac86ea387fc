// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// lc3sim runs LC-3 machine images, either headless on the current
// terminal or under a gocui front panel.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ezrec/lc3sim/io"
	"github.com/ezrec/lc3sim/machine"
	"github.com/ezrec/lc3sim/monitor"
	"github.com/ezrec/lc3sim/panel"
)

func init() {
	exe, _ := os.Executable()
	log.SetFlags(0)
	log.SetPrefix(fmt.Sprintf("%s: ", filepath.Base(exe)))
}

func main() {
	var compile string
	var save bool
	var output string
	var verbose bool
	var strict bool
	var headless bool
	var limit int
	var breaks string
	var watches string
	var cond string

	flag.StringVar(&compile, "c", "", ".asm file to assemble")
	flag.BoolVar(&save, "s", false, "Save the assembled image, do not execute")
	flag.StringVar(&output, "o", "", "Object file to save (default: the source with .obj)")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.BoolVar(&strict, "strict", false, "Stop on reserved instructions")
	flag.BoolVar(&headless, "headless", false, "Run without the front panel")
	flag.IntVar(&limit, "limit", 0, "Stop after this many steps (0 for no limit)")
	flag.StringVar(&breaks, "break", "", "Breakpoint addresses, comma separated, each with an optional =condition")
	flag.StringVar(&watches, "watch", "", "Watchpoint addresses, comma separated, each with an optional :r, :w, or :rw suffix")
	flag.StringVar(&cond, "cond", "", "Break when this condition holds")

	flag.Parse()

	m := machine.NewMachine()
	m.Verbose = verbose
	m.Strict = strict

	var prog *machine.Program
	var err error

	image := compile

	// Assemble a new program.
	if len(compile) != 0 {
		if flag.NArg() != 0 {
			log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
		}

		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}

		asm := &machine.Assembler{Verbose: verbose}
		prog, err = asm.Parse(inf)
		inf.Close()
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}

		if save {
			if output == "" {
				output = strings.TrimSuffix(compile, filepath.Ext(compile)) + ".obj"
			}
			if err := os.WriteFile(output, prog.Image(), 0o644); err != nil {
				log.Fatalf("%v: %v", output, err)
			}
			return
		}

		m.LoadProgram(prog)
	} else {
		if flag.NArg() != 1 {
			log.Fatalf("usage: %v [options] image", filepath.Base(os.Args[0]))
		}

		image = flag.Arg(0)
		imf, err := os.Open(image)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
		err = m.LoadImage(imf)
		imf.Close()
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
	}

	mon := &monitor.Monitor{Cond: cond}
	mon.Breakpoints, err = parseBreaks(breaks)
	if err != nil {
		log.Fatalf("-break %v: %v", breaks, err)
	}
	mon.Watchpoints, err = parseWatches(watches)
	if err != nil {
		log.Fatalf("-watch %v: %v", watches, err)
	}
	m.Debugger = mon

	if headless {
		if err := runHeadless(m, mon, prog, limit); err != nil {
			log.Fatal(err)
		}
		return
	}

	p, err := panel.New(m)
	if err != nil {
		log.Fatalf("front panel: %v", err)
	}

	log.SetOutput(p.Status())
	log.Printf("%v at 0x%04x; F5 runs, F10 steps, ^C quits", filepath.Base(image), m.PC)

	go runPanel(m, mon, p, prog, limit)

	err = p.Run()
	log.SetOutput(os.Stderr)
	if err != nil {
		log.Fatalf("front panel: %v", err)
	}
}

// runHeadless steps the machine on the current terminal until it halts.
// A break or an interrupt drops into the debug shell.
func runHeadless(m *machine.Machine, mon *monitor.Monitor, prog *machine.Program, limit int) error {
	var con io.Console

	term, err := io.Open()
	if err == nil {
		defer term.Close()
		con = term
	} else {
		// Not a terminal. Run off the raw streams.
		con = &io.Stream{Input: os.Stdin, Output: os.Stdout}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	mon.Check(m)
	for !m.Halted {
		select {
		case <-sig:
			fmt.Println()
			mon.Break = true
			mon.Reason = "interrupt"
		default:
		}

		if mon.Break {
			if prompt(m, mon, con, prog) {
				return nil
			}
			continue
		}

		if limit > 0 && m.Steps >= limit {
			return fmt.Errorf("step limit reached after %d steps", m.Steps)
		}

		if err := m.Step(con); err != nil {
			return err
		}
	}

	return nil
}

// runPanel steps the machine under the front panel. It runs in its own
// goroutine; the gocui main loop owns the terminal.
func runPanel(m *machine.Machine, mon *monitor.Monitor, p *panel.Panel, prog *machine.Program, limit int) {
	mon.Check(m)
	p.Refresh()

	for {
		select {
		case <-p.Done():
			return
		case c := <-p.Controls():
			if c == panel.CONTROL_STEP && !mon.Break {
				mon.Break = true
				mon.Reason = "step"
			}
		default:
		}

		if m.Halted {
			log.Printf("halted after %d steps", m.Steps)
			p.Refresh()
			<-p.Done()
			return
		}

		if limit > 0 && m.Steps >= limit && !mon.Break {
			mon.Break = true
			mon.Reason = fmt.Sprintf("step limit (%d)", limit)
		}

		if mon.Break {
			log.Printf("stopped: %v", mon.Reason)
			if src := source(prog, m.PC); src != "" {
				log.Print(src)
			}
			p.Refresh()

			select {
			case <-p.Done():
				return
			case c := <-p.Controls():
				mon.Resume()
				if c == panel.CONTROL_STEP {
					if err := m.Step(p); err != nil {
						log.Print(err)
					}
					if !mon.Break {
						mon.Break = true
						mon.Reason = "step"
					}
				}
			}
			continue
		}

		if err := m.Step(p); err != nil {
			mon.Break = true
			mon.Reason = err.Error()
			continue
		}

		if m.Steps%1024 == 0 {
			p.Refresh()
		}
	}
}

// source returns the assembly source line covering addr, when known.
func source(prog *machine.Program, addr uint16) string {
	if prog == nil {
		return ""
	}
	dbg := prog.Debug(addr)
	if dbg.Line == nil {
		return ""
	}
	return fmt.Sprintf("%d: %v", dbg.LineNo, strings.Join(dbg.Words, " "))
}

// parseAddr accepts 0x3000, x3000, or decimal addresses.
func parseAddr(spec string) (addr uint16, err error) {
	if strings.HasPrefix(spec, "x") {
		spec = "0" + spec
	}
	value, err := strconv.ParseUint(spec, 0, 16)
	addr = uint16(value)
	return
}

func parseBreaks(list string) (bps []monitor.Breakpoint, err error) {
	if list == "" {
		return
	}

	for _, item := range strings.Split(list, ",") {
		spec, cond, _ := strings.Cut(item, "=")
		addr, err2 := parseAddr(spec)
		if err2 != nil {
			err = err2
			return
		}
		bps = append(bps, monitor.Breakpoint{Addr: addr, Cond: cond})
	}
	return
}

func parseWatches(list string) (wps []monitor.Watchpoint, err error) {
	if list == "" {
		return
	}

	for _, item := range strings.Split(list, ",") {
		spec, suffix, _ := strings.Cut(item, ":")

		var kind monitor.Kind
		switch suffix {
		case "r":
			kind = monitor.WATCH_READ
		case "w":
			kind = monitor.WATCH_WRITE
		case "rw", "":
			kind = monitor.WATCH_READWRITE
		default:
			err = fmt.Errorf("'%v' is not a watch kind", suffix)
			return
		}

		addr, err2 := parseAddr(spec)
		if err2 != nil {
			err = err2
			return
		}
		wps = append(wps, monitor.Watchpoint{Addr: addr, Kind: kind})
	}
	return
}
