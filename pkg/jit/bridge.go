package jit

import (
	"fmt"
	"sort"

	"github.com/ascrivener/jitseed/pkg/x86"
)

// NativeCallTarget is the address of a host function, narrowed to 32 bits so
// it can be embedded as an immediate. The function must stay loaded for as
// long as any CodeBuffer embeds it.
type NativeCallTarget uint32

// ArgSpace maps call arity to the extra stack space reserved around a call.
// The numbers are calibration data for the host compiler, not an
// architectural rule: rediscover them when the platform changes.
type ArgSpace map[int]uint8

// DefaultArgSpace returns the reservation observed on 32-bit x86 hosts:
// 8 bytes for zero to two arguments, 24 for three.
func DefaultArgSpace() ArgSpace {
	return ArgSpace{0: 8, 1: 8, 2: 8, 3: 24}
}

// Reserve returns the bytes to reserve for a call of the given arity, 0 if
// the arity is not calibrated.
func (s ArgSpace) Reserve(arity int) uint8 {
	return s[arity]
}

// Validate rejects arities the bridge cannot encode and reservations that do
// not fit a positive imm8.
func (s ArgSpace) Validate() error {
	arities := make([]int, 0, len(s))
	for arity := range s {
		arities = append(arities, arity)
	}
	sort.Ints(arities)

	for _, arity := range arities {
		if arity < 0 || arity > MaxArgs {
			return fmt.Errorf("arg space: arity %d out of range 0..%d", arity, MaxArgs)
		}
		if v := s[arity]; v > 127 {
			return fmt.Errorf("arg space: %d bytes for arity %d does not fit a signed imm8", v, arity)
		}
	}
	return nil
}

// EmitCall appends a callee-pops call to target with args:
//
//	sub  esp, reserve        ; when reserve > 0
//	mov  eax, arg[n-1]       ; pushed right to left
//	push eax
//	...
//	mov  eax, target
//	call eax
//	add  esp, reserve        ; when reserve > 0
//
// The result is left in eax. Nothing checks that target really takes
// len(args) int32 arguments; a mismatch corrupts the stack.
func EmitCall(a *x86.Assembler, target NativeCallTarget, args []int32, space ArgSpace) error {
	if len(args) > MaxArgs {
		return ErrTooManyArgs
	}

	reserve := space.Reserve(len(args))
	if reserve > 0 {
		a.SubESPImm8(reserve)
	}
	for i := len(args) - 1; i >= 0; i-- {
		a.MovEAXImm32(uint32(args[i]))
		a.PushEAX()
	}
	a.MovEAXImm32(uint32(target))
	a.CallEAX()
	if reserve > 0 {
		a.AddESPImm8(reserve)
	}
	return nil
}

// CallProgram returns a complete function that calls target with args inside
// its own frame and returns the callee's result.
func CallProgram(target NativeCallTarget, args []int32, space ArgSpace) ([]byte, error) {
	a := x86.NewAssembler()
	a.Prologue()
	if err := EmitCall(a, target, args, space); err != nil {
		return nil, err
	}
	a.Epilogue()
	a.Ret()
	return a.Bytes(), nil
}

// ConstProgram returns a function that returns v.
func ConstProgram(v int32) []byte {
	a := x86.NewAssembler()
	a.MovEAXImm32(uint32(v))
	a.Ret()
	return a.Bytes()
}

// SumArgsProgram returns a callee-pops function of n stack arguments that
// returns their sum. It is the generated-code side of the convention the
// bridge targets, and can be called with InvokeArgs.
func SumArgsProgram(n int) ([]byte, error) {
	if n < 0 || n > MaxArgs {
		return nil, ErrTooManyArgs
	}

	a := x86.NewAssembler()
	a.Prologue()
	if n == 0 {
		a.MovEAXImm32(0)
	} else {
		a.MovEAXFrameArg(0)
		for i := 1; i < n; i++ {
			a.AddEAXFrameArg(uint8(i))
		}
	}
	a.Epilogue()
	a.RetImm16(uint16(4 * n))
	return a.Bytes(), nil
}
