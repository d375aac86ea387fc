// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package machine

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
	"KBSR":   fmt.Sprintf("%#v", KBSR),
	"KBDR":   fmt.Sprintf("%#v", KBDR),
	"DSR":    fmt.Sprintf("%#v", DSR),
	"DDR":    fmt.Sprintf("%#v", DDR),
	"MCR":    fmt.Sprintf("%#v", MCR),
}

// Assembler is a single pass macro assembler for LC-3 assembly.
type Assembler struct {
	Verbose bool   // If set, verbosely logs the assembler actions.
	Origin  uint16 // Load address from .ORIG, or PC_START.

	predefine map[string]string   // Predefines
	Label     map[string]uint16   // Map of labels to addresses.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.

	lines  []Line // Assembled lines.
	next   int    // Next load address.
	expand int    // Count of macro expansions so far.
	org    bool   // An .ORIG directive was seen.
	done   bool   // An .END directive was seen.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// mnemonics is the instruction vocabulary, including the branch
// variants and the trap service aliases.
var mnemonics = map[string]bool{
	"ADD": true, "AND": true, "NOT": true,
	"BR": true, "BRN": true, "BRZ": true, "BRP": true,
	"BRNZ": true, "BRNP": true, "BRZP": true, "BRNZP": true,
	"JMP": true, "RET": true, "JSR": true, "JSRR": true,
	"LD": true, "LDI": true, "LDR": true, "LEA": true,
	"ST": true, "STI": true, "STR": true,
	"TRAP": true, "RTI": true,
	"GETC": true, "OUT": true, "PUTS": true, "IN": true,
	"PUTSP": true, "HALT": true,
}

// regMap maps register names to register numbers.
var regMap = map[string]uint16{
	"R0": 0, "R1": 1, "R2": 2, "R3": 3,
	"R4": 4, "R5": 5, "R6": 6, "R7": 7,
}

// trapVector maps the trap service aliases to their vectors.
var trapVector = map[string]uint16{
	"GETC":  0x20,
	"OUT":   0x21,
	"PUTS":  0x22,
	"IN":    0x23,
	"PUTSP": 0x24,
	"HALT":  0x25,
}

// regOf maps a register name, case insensitively.
func regOf(word string) (reg uint16, err error) {
	reg, ok := regMap[strings.ToUpper(word)]
	if !ok {
		err = ErrRegisterInvalid
	}
	return
}

// isIdent reports whether a word is an identifier: letters, digits,
// and underscores, not starting with a digit.
func isIdent(word string) bool {
	if len(word) == 0 {
		return false
	}
	for n := 0; n < len(word); n++ {
		c := word[n]
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case n > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// valueOf returns the value of a literal word: #10 decimal, x3000
// hex, and the 0x/0o/0b prefixes, with an optional leading ~ to
// complement the value.
func (asm *Assembler) valueOf(word string) (value uint16, err error) {
	spec := word
	invert := false
	if strings.HasPrefix(spec, "~") {
		invert = true
		spec = spec[1:]
	}
	if len(spec) == 0 {
		err = ErrParseNumber(word)
		return
	}
	if spec[0] == '\'' {
		// Character quotes are expanded into values in parseLine()
		err = ErrParseCharacter(word)
		return
	}

	base := 0
	switch {
	case spec[0] == '#':
		spec = spec[1:]
		base = 10
	case (spec[0] == 'x' || spec[0] == 'X') && len(spec) > 1:
		spec = spec[1:]
		base = 16
	}

	v64, err := strconv.ParseInt(spec, base, 17)
	if err != nil {
		err = ErrParseNumber(word)
		return
	}
	if v64 > 0xffff || v64 < -0x8000 {
		err = ErrRange{Value: v64, Bits: 16}
		return
	}

	value = uint16(v64)
	if invert {
		value = ^value
	}

	return
}

// isLiteral reports whether a word reads as a numeric literal.
// Literals win over identifiers, so a bare x3000 is never a label.
func (asm *Assembler) isLiteral(word string) bool {
	_, err := asm.valueOf(word)
	return err == nil
}

// fieldOf reads a literal destined for a signed field of the given
// width.
func (asm *Assembler) fieldOf(word string, bits uint) (field int16, err error) {
	value, err := asm.valueOf(word)
	if err != nil {
		return
	}

	field = int16(value)
	limit := 1 << (bits - 1)
	if int(field) < -limit || int(field) >= limit {
		err = ErrRange{Value: int64(field), Bits: bits}
		return
	}

	return
}

// offsetOf reads a PC-relative operand: either a literal offset, or a
// label to resolve once every address is known.
func (asm *Assembler) offsetOf(word string, bits uint) (offset int16, label string, err error) {
	if asm.isLiteral(word) {
		offset, err = asm.fieldOf(word, bits)
		return
	}

	if !isIdent(word) {
		err = ErrTargetInvalid
		return
	}

	label = word
	return
}

// isOperation reports whether a word is meaningful at the start of an
// instruction: a mnemonic, a macro invocation, or a register.
func (asm *Assembler) isOperation(word string) bool {
	upper := strings.ToUpper(word)
	if mnemonics[upper] {
		return true
	}
	if _, ok := regMap[upper]; ok {
		return true
	}
	_, ok := asm.Macro[word]
	return ok
}

// brFlags returns the condition mask of a BR mnemonic suffix.
func brFlags(suffix string) (n, z, p bool) {
	if suffix == "" {
		return true, true, true
	}
	for _, c := range suffix {
		switch c {
		case 'N':
			n = true
		case 'Z':
			z = true
		case 'P':
			p = true
		}
	}
	return
}

// charOf returns the byte value of a character quote.
func charOf(word string) (value string, err error) {
	if len(word) < 3 || !strings.HasSuffix(word, "'") {
		err = ErrParseCharacter(word)
		return
	}

	str := word[1 : len(word)-1]
	if str[0] == '\\' {
		switch str[1:] {
		case "\\":
			str = "\\"
		case "'":
			str = "'"
		case "0":
			str = "\x00"
		case "n":
			str = "\n"
		case "r":
			str = "\r"
		case "t":
			str = "\t"
		case "e":
			str = "\033"
		default:
			err = ErrParseCharacter(word)
			return
		}
	}
	if len(str) != 1 {
		err = ErrParseCharacter(word)
		return
	}

	value = fmt.Sprintf("%v", str[0])
	return
}

// stripComment removes a trailing ; comment, honoring quoted text.
func stripComment(line string) string {
	var quote byte
	escaped := false
	for n := 0; n < len(line); n++ {
		c := line[n]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && quote != 0:
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return line[:n]
		}
	}
	return line
}

// splitWords splits a line into words. Commas separate like spaces, a
// quoted string or character is one word with its quotes, and a $( )
// expression is one word up to its closing paren.
func splitWords(line string) (words []string) {
	var word strings.Builder
	var quote byte
	var parens int
	escaped := false

	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}

	for n := 0; n < len(line); n++ {
		c := line[n]
		switch {
		case quote != 0:
			word.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
		case parens > 0:
			word.WriteByte(c)
			if c == '(' {
				parens++
			} else if c == ')' {
				parens--
			}
		case c == ' ' || c == '\t' || c == ',':
			flush()
		case c == '\'' || c == '"':
			word.WriteByte(c)
			quote = c
		case c == '$' && n+1 < len(line) && line[n+1] == '(':
			word.WriteString("$(")
			n++
			parens = 1
		default:
			word.WriteByte(c)
		}
	}
	flush()

	return
}

// parenEval does assembly-time $( ) evaluations.
func (asm *Assembler) parenEval(expr string) (value uint16, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		value16, verr := asm.valueOf(str)
		if verr != nil {
			// Ignore non-integer equates. They may be labels
			// or something else.
			continue
		}
		pred[key] = starlark.MakeInt(int(value16))
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = uint16(st_int64)
	return
}

// parseLine expands a single line: character quotes, $( ) expressions,
// equates, labels, and macro invocations.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	words = splitWords(line)
	if len(words) == 0 {
		return
	}

	for n, word := range words {
		switch {
		case strings.HasPrefix(word, "'"):
			words[n], err = charOf(word)
			if err != nil {
				return
			}
		case strings.HasPrefix(word, "$("):
			if !strings.HasSuffix(word, ")") {
				err = ErrParseExpression(word)
				return
			}
			var value uint16
			value, err = asm.parenEval(word[2 : len(word)-1])
			if err != nil {
				return
			}
			words[n] = fmt.Sprintf("%#v", value)
		}
	}

	// .EQU NAME VALUE
	if strings.EqualFold(words[0], ".EQU") {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	// Check for equates next
	for n, word := range words {
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	// Labels, with or without a trailing colon. A bare label must not
	// collide with the instruction vocabulary or read as a literal.
	for len(words) > 0 {
		word := words[0]
		label := ""
		if strings.HasSuffix(word, ":") {
			label = word[:len(word)-1]
		} else if isIdent(word) && !asm.isOperation(word) && !asm.isLiteral(word) {
			label = word
		}
		if label == "" {
			break
		}

		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]uint16, 16)
		}
		asm.Label[label] = uint16(asm.next)
		words = words[1:]
	}
	if len(words) == 0 {
		return
	}

	// .macro expansion
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = args[n]
		}
		defer func() { asm.Equate = old_equate }()

		// Local @ labels are unique to each expansion.
		asm.expand += 1
		local := fmt.Sprintf("%v_%v_", name, asm.expand)

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", local)
			words, err = asm.parseLine(line, lineno)
			if err == nil {
				err = asm.parseWords(words, lineno)
			}
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// parseWords assembles the words of a single expanded line.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	if len(words) == 0 {
		return
	}

	var data []uint16
	var link string
	var bits uint

	defer func() {
		if err != nil || len(data) == 0 {
			return
		}
		if asm.next+len(data) > MEM_SIZE {
			err = ErrImageTooLarge
			return
		}
		asm.lines = append(asm.lines, Line{
			LineNo: lineno,
			Addr:   uint16(asm.next),
			Words:  words,
			Data:   data,
			Link:   link,
			Bits:   bits,
		})
		asm.next += len(data)
	}()

	op := strings.ToUpper(words[0])

	// BR and its condition suffixed forms
	if strings.HasPrefix(op, "BR") && mnemonics[op] {
		if len(words) < 2 {
			err = ErrTargetMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		n, z, p := brFlags(op[2:])
		var offset int16
		offset, link, err = asm.offsetOf(words[1], 9)
		if err != nil {
			return
		}
		if link != "" {
			bits = 9
		}
		data = []uint16{uint16(MakeBr(n, z, p, offset))}
		return
	}

	switch op {
	case ".ORIG":
		if len(words) < 2 {
			err = ErrOpcodeValueMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		if asm.org {
			err = ErrOriginDuplicate
			return
		}
		if len(asm.lines) > 0 {
			err = ErrOriginMisplaced
			return
		}
		var origin uint16
		origin, err = asm.valueOf(words[1])
		if err != nil {
			return
		}
		asm.Origin = origin
		asm.next = int(origin)
		asm.org = true

	case ".END":
		if len(words) > 1 {
			err = ErrOpcodeExtraArgs
			return
		}
		asm.done = true

	case ".FILL":
		if len(words) < 2 {
			err = ErrOpcodeValueMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		value, verr := asm.valueOf(words[1])
		switch {
		case verr == nil:
			data = []uint16{value}
		case isIdent(words[1]):
			data = []uint16{0}
			link = words[1]
			bits = 16
		default:
			err = verr
			return
		}

	case ".BLKW":
		if len(words) < 2 {
			err = ErrOpcodeValueMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		var count uint16
		count, err = asm.valueOf(words[1])
		if err != nil {
			return
		}
		data = make([]uint16, count)

	case ".STRINGZ":
		if len(words) < 2 {
			err = ErrOpcodeValueMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		var text string
		text, err = strconv.Unquote(words[1])
		if err != nil {
			err = ErrStringSyntax
			return
		}
		for _, c := range []byte(text) {
			data = append(data, uint16(c))
		}
		data = append(data, 0)

	case "ADD", "AND":
		if len(words) < 4 {
			err = ErrOpcodeMissing
			return
		}
		if len(words) > 4 {
			err = ErrOpcodeExtraArgs
			return
		}
		var dr, sr1 uint16
		dr, err = regOf(words[1])
		if err != nil {
			return
		}
		sr1, err = regOf(words[2])
		if err != nil {
			return
		}
		if sr2, ok := regMap[strings.ToUpper(words[3])]; ok {
			if op == "ADD" {
				data = []uint16{uint16(MakeAdd(dr, sr1, sr2))}
			} else {
				data = []uint16{uint16(MakeAnd(dr, sr1, sr2))}
			}
		} else {
			var imm5 int16
			imm5, err = asm.fieldOf(words[3], 5)
			if err != nil {
				return
			}
			if op == "ADD" {
				data = []uint16{uint16(MakeAddImm(dr, sr1, imm5))}
			} else {
				data = []uint16{uint16(MakeAndImm(dr, sr1, imm5))}
			}
		}

	case "NOT":
		if len(words) < 3 {
			err = ErrOpcodeMissing
			return
		}
		if len(words) > 3 {
			err = ErrOpcodeExtraArgs
			return
		}
		var dr, sr uint16
		dr, err = regOf(words[1])
		if err != nil {
			return
		}
		sr, err = regOf(words[2])
		if err != nil {
			return
		}
		data = []uint16{uint16(MakeNot(dr, sr))}

	case "JMP":
		if len(words) < 2 {
			err = ErrOpcodeMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		var base uint16
		base, err = regOf(words[1])
		if err != nil {
			return
		}
		data = []uint16{uint16(MakeJmp(base))}

	case "RET":
		if len(words) > 1 {
			err = ErrOpcodeExtraArgs
			return
		}
		data = []uint16{uint16(MakeJmp(7))}

	case "JSR":
		if len(words) < 2 {
			err = ErrTargetMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		var offset int16
		offset, link, err = asm.offsetOf(words[1], 11)
		if err != nil {
			return
		}
		if link != "" {
			bits = 11
		}
		data = []uint16{uint16(MakeJsr(offset))}

	case "JSRR":
		if len(words) < 2 {
			err = ErrOpcodeMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		var base uint16
		base, err = regOf(words[1])
		if err != nil {
			return
		}
		data = []uint16{uint16(MakeJsrr(base))}

	case "LD", "LDI", "LEA", "ST", "STI":
		if len(words) < 3 {
			err = ErrOpcodeMissing
			return
		}
		if len(words) > 3 {
			err = ErrOpcodeExtraArgs
			return
		}
		var reg uint16
		reg, err = regOf(words[1])
		if err != nil {
			return
		}
		var offset int16
		offset, link, err = asm.offsetOf(words[2], 9)
		if err != nil {
			return
		}
		if link != "" {
			bits = 9
		}
		switch op {
		case "LD":
			data = []uint16{uint16(MakeLd(reg, offset))}
		case "LDI":
			data = []uint16{uint16(MakeLdi(reg, offset))}
		case "LEA":
			data = []uint16{uint16(MakeLea(reg, offset))}
		case "ST":
			data = []uint16{uint16(MakeSt(reg, offset))}
		case "STI":
			data = []uint16{uint16(MakeSti(reg, offset))}
		}

	case "LDR", "STR":
		if len(words) < 4 {
			err = ErrOpcodeMissing
			return
		}
		if len(words) > 4 {
			err = ErrOpcodeExtraArgs
			return
		}
		var reg, base uint16
		reg, err = regOf(words[1])
		if err != nil {
			return
		}
		base, err = regOf(words[2])
		if err != nil {
			return
		}
		var offset int16
		offset, err = asm.fieldOf(words[3], 6)
		if err != nil {
			return
		}
		if op == "LDR" {
			data = []uint16{uint16(MakeLdr(reg, base, offset))}
		} else {
			data = []uint16{uint16(MakeStr(reg, base, offset))}
		}

	case "TRAP":
		if len(words) < 2 {
			err = ErrOpcodeValueMissing
			return
		}
		if len(words) > 2 {
			err = ErrOpcodeExtraArgs
			return
		}
		var vector uint16
		vector, err = asm.valueOf(words[1])
		if err != nil {
			return
		}
		if vector > 0xff {
			err = ErrRange{Value: int64(vector), Bits: 8}
			return
		}
		data = []uint16{uint16(MakeTrap(vector))}

	case "GETC", "OUT", "PUTS", "IN", "PUTSP", "HALT":
		if len(words) > 1 {
			err = ErrOpcodeExtraArgs
			return
		}
		data = []uint16{uint16(MakeTrap(trapVector[op]))}

	case "RTI":
		if len(words) > 1 {
			err = ErrOpcodeExtraArgs
			return
		}
		data = []uint16{uint16(makeOp(OP_RTI, 0))}

	default:
		err = ErrOpcodeInvalid
		return
	}

	return
}

// Parse assembles an input stream into a Program.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {

	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	clear(asm.Label)
	asm.lines = asm.lines[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}
	asm.Origin = PC_START
	asm.next = int(PC_START)
	asm.expand = 0
	asm.org = false
	asm.done = false

	for !asm.done && scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		line = strings.TrimSpace(stripComment(text))
		words := splitWords(line)

		// .MACRO NAME arg...
		if len(words) > 0 && strings.EqualFold(words[0], ".MACRO") {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = words[2:]
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && strings.EqualFold(words[0], ".ENDM") {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	// Final linking of labels.
	for n := range asm.lines {
		ln := &asm.lines[n]

		if len(ln.Link) == 0 {
			continue
		}
		target, ok := asm.Label[ln.Link]
		if !ok {
			lineno = ln.LineNo
			line = strings.Join(ln.Words, " ")
			err = ErrLabelMissing(ln.Link)
			return
		}

		last := len(ln.Data) - 1
		if ln.Bits == 16 {
			ln.Data[last] = target
			continue
		}

		// PC-relative, from the word after the instruction.
		next := ln.Addr + uint16(len(ln.Data))
		delta := int(int16(target - next))
		limit := 1 << (ln.Bits - 1)
		if delta < -limit || delta >= limit {
			lineno = ln.LineNo
			line = strings.Join(ln.Words, " ")
			err = ErrRange{Value: int64(delta), Bits: ln.Bits}
			return
		}
		ln.Data[last] |= uint16(delta) & uint16(1<<ln.Bits - 1)
	}

	prog = &Program{
		Origin: asm.Origin,
		Lines:  slices.Clone(asm.lines),
	}

	return
}
