// Package x86 emits a hand-picked subset of 32-bit x86 machine code.
//
// It is not a general assembler. Every method appends the fixed encoding of
// one instruction and performs no validation: stack balance, register
// liveness and control flow are the caller's responsibility. Code that pushes
// must pop, code that reserves stack must release it, and every sequence
// handed to an executable buffer must end in a return.
package x86

import (
	"encoding/binary"
)

// x86-32 register encoding
type Reg byte

const (
	EAX Reg = 0
	ECX Reg = 1
	EDX Reg = 2
	EBX Reg = 3
	ESP Reg = 4
	EBP Reg = 5
	ESI Reg = 6
	EDI Reg = 7
)

// Assembler accumulates x86-32 machine code
type Assembler struct {
	buf []byte
}

// NewAssembler creates an empty assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Len returns the number of bytes emitted so far
func (a *Assembler) Len() int {
	return len(a.buf)
}

// Bytes returns the assembled code. The slice aliases the assembler's
// storage; further emits may or may not be visible through it.
func (a *Assembler) Bytes() []byte {
	return a.buf
}

// Reset discards all emitted code
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
}

// emit appends bytes to the buffer
func (a *Assembler) emit(bytes ...byte) {
	a.buf = append(a.buf, bytes...)
}

// emitUint32 appends a little-endian uint32
func (a *Assembler) emitUint32(v uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, v)
}

// emitUint16 appends a little-endian uint16
func (a *Assembler) emitUint16(v uint16) {
	a.buf = binary.LittleEndian.AppendUint16(a.buf, v)
}

// modRM builds ModR/M byte: [mod:2][reg:3][rm:3]
// mod should be pre-shifted: 0x00=no disp, 0x40=disp8, 0x80=disp32, 0xC0=register
func modRM(mod byte, reg, rm Reg) byte {
	return mod | ((byte(reg) & 7) << 3) | (byte(rm) & 7)
}

// MovRegImm32: mov reg, imm32
func (a *Assembler) MovRegImm32(reg Reg, imm uint32) {
	a.emit(0xB8 | byte(reg&7))
	a.emitUint32(imm)
}

// MovEAXImm32: mov eax, imm32
func (a *Assembler) MovEAXImm32(imm uint32) {
	a.MovRegImm32(EAX, imm)
}

// MovRegReg: mov dst, src
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.emit(0x89, modRM(0xC0, src, dst))
}

// PushReg: push reg
func (a *Assembler) PushReg(reg Reg) {
	a.emit(0x50 | byte(reg&7))
}

// PopReg: pop reg
func (a *Assembler) PopReg(reg Reg) {
	a.emit(0x58 | byte(reg&7))
}

// PushEAX: push eax
func (a *Assembler) PushEAX() {
	a.PushReg(EAX)
}

// PushEBP: push ebp
func (a *Assembler) PushEBP() {
	a.PushReg(EBP)
}

// PopEBP: pop ebp
func (a *Assembler) PopEBP() {
	a.PopReg(EBP)
}

// MovEBPESP: mov ebp, esp
func (a *Assembler) MovEBPESP() {
	a.MovRegReg(EBP, ESP)
}

// MovESPEBP: mov esp, ebp
func (a *Assembler) MovESPEBP() {
	a.MovRegReg(ESP, EBP)
}

// Prologue establishes a frame: push ebp; mov ebp, esp
func (a *Assembler) Prologue() {
	a.PushEBP()
	a.MovEBPESP()
}

// Epilogue tears the frame down: mov esp, ebp; pop ebp
func (a *Assembler) Epilogue() {
	a.MovESPEBP()
	a.PopEBP()
}

// SubESPImm8: sub esp, imm8
//
// The processor sign-extends the immediate, so values of 0x80 and above
// move esp the other way. Use at most 127 for a real reservation.
func (a *Assembler) SubESPImm8(imm uint8) {
	a.emit(0x83, modRM(0xC0, 5, ESP), imm)
}

// AddESPImm8: add esp, imm8 (sign-extended like SubESPImm8)
func (a *Assembler) AddESPImm8(imm uint8) {
	a.emit(0x83, modRM(0xC0, 0, ESP), imm)
}

// MovEAXFrameArg: mov eax, [ebp + 8 + 4*index]
// Reads the index'th stack argument of a function that ran Prologue.
func (a *Assembler) MovEAXFrameArg(index uint8) {
	a.emit(0x8B, modRM(0x40, EAX, EBP), frameArgDisp(index))
}

// AddEAXFrameArg: add eax, [ebp + 8 + 4*index]
func (a *Assembler) AddEAXFrameArg(index uint8) {
	a.emit(0x03, modRM(0x40, EAX, EBP), frameArgDisp(index))
}

// frameArgDisp skips the saved ebp and the return address. Only indices
// that fit a signed disp8 are meaningful (0..29).
func frameArgDisp(index uint8) byte {
	return byte(8 + 4*int(index))
}

// CallEAX: call eax
func (a *Assembler) CallEAX() {
	a.emit(0xFF, modRM(0xC0, 2, EAX))
}

// Ret: ret
func (a *Assembler) Ret() {
	a.emit(0xC3)
}

// RetImm16: ret imm16 (callee pops imm16 bytes of arguments)
func (a *Assembler) RetImm16(n uint16) {
	a.emit(0xC2)
	a.emitUint16(n)
}
