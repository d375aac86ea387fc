package machine

import (
	"fmt"
)

// Cond is the 3-valued condition code.
type Cond int

//go:generate go tool stringer -linecomment -type=Cond
const (
	CC_ZERO     = Cond(0) // Z
	CC_NEGATIVE = Cond(1) // N
	CC_POSITIVE = Cond(2) // P
)

// Setcc returns the condition code of a value just written to a register.
func Setcc(value uint16) Cond {
	switch {
	case value == 0:
		return CC_ZERO
	case int16(value) < 0:
		return CC_NEGATIVE
	default:
		return CC_POSITIVE
	}
}

// Opcode is the operation class in the top four bits of an instruction.
type Opcode int

//go:generate go tool stringer -linecomment -type=Opcode
const (
	OP_BR   = Opcode(0)  // BR
	OP_ADD  = Opcode(1)  // ADD
	OP_LD   = Opcode(2)  // LD
	OP_ST   = Opcode(3)  // ST
	OP_JSR  = Opcode(4)  // JSR
	OP_AND  = Opcode(5)  // AND
	OP_LDR  = Opcode(6)  // LDR
	OP_STR  = Opcode(7)  // STR
	OP_RTI  = Opcode(8)  // RTI
	OP_NOT  = Opcode(9)  // NOT
	OP_LDI  = Opcode(10) // LDI
	OP_STI  = Opcode(11) // STI
	OP_JMP  = Opcode(12) // JMP
	OP_RES  = Opcode(13) // RES
	OP_LEA  = Opcode(14) // LEA
	OP_TRAP = Opcode(15) // TRAP
)

// Sets returns true if the opcode updates the condition code.
func (op Opcode) Sets() bool {
	switch op {
	case OP_ADD, OP_AND, OP_NOT, OP_LD, OP_LDI, OP_LDR, OP_LEA:
		return true
	}
	return false
}

// SignExtend widens the low bits of value to a full signed 16-bit word.
func SignExtend(value uint16, bits uint) uint16 {
	shift := 16 - bits
	return uint16(int16(value<<shift) >> shift)
}

// Instruction is a single 16-bit instruction word.
type Instruction uint16

// makeOp assembles an opcode field onto an operand pattern.
func makeOp(op Opcode, operands uint16) Instruction {
	return Instruction((uint16(op) << 12) | operands)
}

// MakeAdd encodes a register-mode ADD.
func MakeAdd(dr, sr1, sr2 uint16) Instruction {
	return makeOp(OP_ADD, ((dr&7)<<9)|((sr1&7)<<6)|(sr2&7))
}

// MakeAddImm encodes an immediate-mode ADD.
func MakeAddImm(dr, sr1 uint16, imm5 int16) Instruction {
	return makeOp(OP_ADD, ((dr&7)<<9)|((sr1&7)<<6)|0x0020|(uint16(imm5)&0x1f))
}

// MakeAnd encodes a register-mode AND.
func MakeAnd(dr, sr1, sr2 uint16) Instruction {
	return makeOp(OP_AND, ((dr&7)<<9)|((sr1&7)<<6)|(sr2&7))
}

// MakeAndImm encodes an immediate-mode AND.
func MakeAndImm(dr, sr1 uint16, imm5 int16) Instruction {
	return makeOp(OP_AND, ((dr&7)<<9)|((sr1&7)<<6)|0x0020|(uint16(imm5)&0x1f))
}

// MakeNot encodes a NOT.
func MakeNot(dr, sr1 uint16) Instruction {
	return makeOp(OP_NOT, ((dr&7)<<9)|((sr1&7)<<6)|0x003f)
}

// MakeBr encodes a conditional branch on any of the three codes.
func MakeBr(n, z, p bool, offset9 int16) Instruction {
	var mask uint16
	if n {
		mask |= 1 << 11
	}
	if z {
		mask |= 1 << 10
	}
	if p {
		mask |= 1 << 9
	}
	return makeOp(OP_BR, mask|(uint16(offset9)&0x1ff))
}

// MakeJmp encodes a register jump.
func MakeJmp(base uint16) Instruction {
	return makeOp(OP_JMP, (base&7)<<6)
}

// MakeJsr encodes a PC-relative subroutine call.
func MakeJsr(offset11 int16) Instruction {
	return makeOp(OP_JSR, (1<<11)|(uint16(offset11)&0x7ff))
}

// MakeJsrr encodes a register subroutine call.
func MakeJsrr(base uint16) Instruction {
	return makeOp(OP_JSR, (base&7)<<6)
}

// MakeLd encodes a PC-relative load.
func MakeLd(dr uint16, offset9 int16) Instruction {
	return makeOp(OP_LD, ((dr&7)<<9)|(uint16(offset9)&0x1ff))
}

// MakeLdi encodes an indirect load.
func MakeLdi(dr uint16, offset9 int16) Instruction {
	return makeOp(OP_LDI, ((dr&7)<<9)|(uint16(offset9)&0x1ff))
}

// MakeLdr encodes a base-plus-offset load.
func MakeLdr(dr, base uint16, offset6 int16) Instruction {
	return makeOp(OP_LDR, ((dr&7)<<9)|((base&7)<<6)|(uint16(offset6)&0x3f))
}

// MakeLea encodes a load of an effective address.
func MakeLea(dr uint16, offset9 int16) Instruction {
	return makeOp(OP_LEA, ((dr&7)<<9)|(uint16(offset9)&0x1ff))
}

// MakeSt encodes a PC-relative store.
func MakeSt(sr uint16, offset9 int16) Instruction {
	return makeOp(OP_ST, ((sr&7)<<9)|(uint16(offset9)&0x1ff))
}

// MakeSti encodes an indirect store.
func MakeSti(sr uint16, offset9 int16) Instruction {
	return makeOp(OP_STI, ((sr&7)<<9)|(uint16(offset9)&0x1ff))
}

// MakeStr encodes a base-plus-offset store.
func MakeStr(sr, base uint16, offset6 int16) Instruction {
	return makeOp(OP_STR, ((sr&7)<<9)|((base&7)<<6)|(uint16(offset6)&0x3f))
}

// MakeTrap encodes a trap through the given vector.
func MakeTrap(vector uint16) Instruction {
	return makeOp(OP_TRAP, vector&0xff)
}

// Opcode returns the operation class from the top four bits.
func (ir Instruction) Opcode() Opcode {
	return Opcode((uint16(ir) >> 12) & 0xf)
}

// AluDecode decodes and returns the ADD, AND, and NOT operands: the
// destination, the first source, and a second source that is either a
// register or a sign-extended imm5, selected by bit 5.
func (ir Instruction) AluDecode() (dr, sr1 uint16, imm bool, sr2, imm5 uint16) {
	word := uint16(ir)
	dr = (word >> 9) & 0x7
	sr1 = (word >> 6) & 0x7
	imm = (word & 0x0020) != 0
	sr2 = word & 0x7
	imm5 = SignExtend(word&0x1f, 5)
	return
}

// PcDecode decodes and returns the register field and sign-extended PC
// offset of LD, LDI, LEA, ST, and STI.
func (ir Instruction) PcDecode() (reg, offset9 uint16) {
	word := uint16(ir)
	reg = (word >> 9) & 0x7
	offset9 = SignExtend(word&0x1ff, 9)
	return
}

// BrDecode decodes and returns the branch condition mask and the
// sign-extended PC offset.
func (ir Instruction) BrDecode() (n, z, p bool, offset9 uint16) {
	word := uint16(ir)
	n = (word & (1 << 11)) != 0
	z = (word & (1 << 10)) != 0
	p = (word & (1 << 9)) != 0
	offset9 = SignExtend(word&0x1ff, 9)
	return
}

// BaseDecode decodes and returns the register, base register, and
// sign-extended offset of LDR and STR.
func (ir Instruction) BaseDecode() (reg, base, offset6 uint16) {
	word := uint16(ir)
	reg = (word >> 9) & 0x7
	base = (word >> 6) & 0x7
	offset6 = SignExtend(word&0x3f, 6)
	return
}

// JmpDecode decodes and returns the base register of JMP.
func (ir Instruction) JmpDecode() (base uint16) {
	base = (uint16(ir) >> 6) & 0x7
	return
}

// JsrDecode decodes and returns the call form: PC-relative with a
// sign-extended offset when long is set, otherwise through the base
// register.
func (ir Instruction) JsrDecode() (long bool, offset11, base uint16) {
	word := uint16(ir)
	long = (word & (1 << 11)) != 0
	offset11 = SignExtend(word&0x7ff, 11)
	base = (word >> 6) & 0x7
	return
}

// TrapDecode decodes and returns the zero-extended trap vector.
func (ir Instruction) TrapDecode() (vector uint16) {
	vector = uint16(ir) & 0xff
	return
}

// String returns the assembly language representation of the instruction.
func (ir Instruction) String() (out string) {
	op := ir.Opcode()

	switch op {
	case OP_ADD, OP_AND:
		dr, sr1, imm, sr2, imm5 := ir.AluDecode()
		if imm {
			out = fmt.Sprintf("%v R%d, R%d, #%d", op, dr, sr1, int16(imm5))
		} else {
			out = fmt.Sprintf("%v R%d, R%d, R%d", op, dr, sr1, sr2)
		}
	case OP_NOT:
		dr, sr1, _, _, _ := ir.AluDecode()
		out = fmt.Sprintf("%v R%d, R%d", op, dr, sr1)
	case OP_BR:
		n, z, p, offset9 := ir.BrDecode()
		var mask string
		if n {
			mask += "n"
		}
		if z {
			mask += "z"
		}
		if p {
			mask += "p"
		}
		out = fmt.Sprintf("%v%v #%d", op, mask, int16(offset9))
	case OP_LD, OP_LDI, OP_LEA, OP_ST, OP_STI:
		reg, offset9 := ir.PcDecode()
		out = fmt.Sprintf("%v R%d, #%d", op, reg, int16(offset9))
	case OP_LDR, OP_STR:
		reg, base, offset6 := ir.BaseDecode()
		out = fmt.Sprintf("%v R%d, R%d, #%d", op, reg, base, int16(offset6))
	case OP_JMP:
		out = fmt.Sprintf("%v R%d", op, ir.JmpDecode())
	case OP_JSR:
		long, offset11, base := ir.JsrDecode()
		if long {
			out = fmt.Sprintf("%v #%d", op, int16(offset11))
		} else {
			out = fmt.Sprintf("JSRR R%d", base)
		}
	case OP_TRAP:
		out = fmt.Sprintf("%v x%02X", op, ir.TrapDecode())
	case OP_RTI, OP_RES:
		out = op.String()
	}

	return
}
