/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"minijvm/classloader"
	"minijvm/frames"
	"minijvm/heap"
)

// Result is what a finished method hands back: nothing for a void
// method, or a single int32 for IRETURN/ARETURN. Whether the value is
// an integer or a heap reference is up to the caller's next opcode.
type Result struct {
	HasValue bool
	Value    int32
}

var traceLog *zap.Logger

// SetTraceLogger installs a logger that receives one Debug entry per
// dispatched instruction. Pass nil to turn tracing back off.
func SetTraceLogger(l *zap.Logger) {
	traceLog = l
}

// Execute runs meth to completion and returns its return value. The
// locals slice must already hold the method's arguments in slots
// 0..k-1 and be max_locals long; the remaining slots stay zero.
//
// Static calls recurse into Execute, so bytecode call depth maps
// directly onto Go stack depth. A runaway recursive program dies with
// native stack exhaustion rather than a polite error.
func Execute(meth *classloader.Method, locals []int32, cf *classloader.ClassFile, hp *heap.Heap) (Result, error) {
	f := frames.CreateFrame(meth.MaxStack)
	f.Locals = locals
	f.Meth = meth.Code
	f.MethName = meth.Name
	return runFrame(f, cf, hp)
}

// runFrame is the dispatch loop: fetch the opcode under PC, mutate the
// stack, locals, heap, and PC per its definition, repeat until a
// return opcode or the end of the code. Falling off the end counts as
// a void return; well-formed methods always return explicitly.
func runFrame(f *frames.Frame, cf *classloader.ClassFile, hp *heap.Heap) (Result, error) {
	for f.PC < len(f.Meth) {
		opcode := f.Meth[f.PC]
		if traceLog != nil {
			traceInstr(f, opcode)
		}

		switch opcode {
		case NOP:
			f.PC += 1

		// ---- constants ----
		case ICONST_M1, ICONST_0, ICONST_1, ICONST_2, ICONST_3, ICONST_4, ICONST_5:
			push(f, int32(opcode)-ICONST_0)
			f.PC += 1
		case BIPUSH: // push the following byte, sign-extended
			push(f, int32(int8(f.Meth[f.PC+1])))
			f.PC += 2
		case SIPUSH: // push the following two bytes as a signed 16-bit int
			push(f, int32(int16(uint16(f.Meth[f.PC+1])<<8|uint16(f.Meth[f.PC+2]))))
			f.PC += 3
		case LDC: // push integer constant from the pool, indexed by next byte
			v, err := cf.IntConstant(int(f.Meth[f.PC+1]) - 1)
			if err != nil {
				return Result{}, errors.Wrap(err, "LDC in method "+f.MethName)
			}
			push(f, v)
			f.PC += 2

		// ---- locals ----
		// references are int32 slots here, so the a-variants are the
		// same operation as the i-variants
		case ILOAD, ALOAD:
			push(f, f.Locals[f.Meth[f.PC+1]])
			f.PC += 2
		case ILOAD_0, ILOAD_1, ILOAD_2, ILOAD_3:
			push(f, f.Locals[opcode-ILOAD_0])
			f.PC += 1
		case ALOAD_0, ALOAD_1, ALOAD_2, ALOAD_3:
			push(f, f.Locals[opcode-ALOAD_0])
			f.PC += 1
		case ISTORE, ASTORE:
			f.Locals[f.Meth[f.PC+1]] = pop(f)
			f.PC += 2
		case ISTORE_0, ISTORE_1, ISTORE_2, ISTORE_3:
			f.Locals[opcode-ISTORE_0] = pop(f)
			f.PC += 1
		case ASTORE_0, ASTORE_1, ASTORE_2, ASTORE_3:
			f.Locals[opcode-ASTORE_0] = pop(f)
			f.PC += 1
		case IINC: // add a signed byte constant to a local, stack untouched
			f.Locals[f.Meth[f.PC+1]] += int32(int8(f.Meth[f.PC+2]))
			f.PC += 3

		// ---- arithmetic ----
		// int32 overflow wraps in Go, which is exactly the required
		// two's-complement behavior
		case IADD:
			b := pop(f)
			a := pop(f)
			push(f, a+b)
			f.PC += 1
		case ISUB:
			b := pop(f)
			a := pop(f)
			push(f, a-b)
			f.PC += 1
		case IMUL:
			b := pop(f)
			a := pop(f)
			push(f, a*b)
			f.PC += 1
		case IDIV:
			b := pop(f)
			if b == 0 {
				return Result{}, errors.Errorf(
					"IDIV: division by zero in method %s at pc %d", f.MethName, f.PC)
			}
			a := pop(f)
			push(f, a/b)
			f.PC += 1
		case IREM:
			b := pop(f)
			if b == 0 {
				return Result{}, errors.Errorf(
					"IREM: division by zero in method %s at pc %d", f.MethName, f.PC)
			}
			a := pop(f)
			push(f, a%b)
			f.PC += 1
		case INEG:
			push(f, -pop(f))
			f.PC += 1
		case ISHL: // only the bottom five bits of the shift count are used
			b := pop(f)
			a := pop(f)
			push(f, a<<(uint32(b)&0x1F))
			f.PC += 1
		case ISHR: // arithmetic shift: sign bit propagates
			b := pop(f)
			a := pop(f)
			push(f, a>>(uint32(b)&0x1F))
			f.PC += 1
		case IUSHR: // logical shift: the left operand is treated as unsigned
			b := pop(f)
			a := pop(f)
			push(f, int32(uint32(a)>>(uint32(b)&0x1F)))
			f.PC += 1
		case IAND:
			b := pop(f)
			a := pop(f)
			push(f, a&b)
			f.PC += 1
		case IOR:
			b := pop(f)
			a := pop(f)
			push(f, a|b)
			f.PC += 1
		case IXOR:
			b := pop(f)
			a := pop(f)
			push(f, a^b)
			f.PC += 1

		// ---- stack ----
		case DUP:
			push(f, peek(f))
			f.PC += 1

		// ---- control flow ----
		// branch offsets are signed 16-bit, relative to the address of
		// the branch opcode itself
		case GOTO:
			f.PC += branchOffset(f)
		case IFEQ:
			branchIf(f, pop(f) == 0)
		case IFNE:
			branchIf(f, pop(f) != 0)
		case IFLT:
			branchIf(f, pop(f) < 0)
		case IFGE:
			branchIf(f, pop(f) >= 0)
		case IFGT:
			branchIf(f, pop(f) > 0)
		case IFLE:
			branchIf(f, pop(f) <= 0)
		case IF_ICMPEQ:
			b := pop(f)
			a := pop(f)
			branchIf(f, a == b)
		case IF_ICMPNE:
			b := pop(f)
			a := pop(f)
			branchIf(f, a != b)
		case IF_ICMPLT:
			b := pop(f)
			a := pop(f)
			branchIf(f, a < b)
		case IF_ICMPGE:
			b := pop(f)
			a := pop(f)
			branchIf(f, a >= b)
		case IF_ICMPGT:
			b := pop(f)
			a := pop(f)
			branchIf(f, a > b)
		case IF_ICMPLE:
			b := pop(f)
			a := pop(f)
			branchIf(f, a <= b)

		// ---- returns ----
		case RETURN:
			return Result{}, nil
		case IRETURN, ARETURN:
			return Result{HasValue: true, Value: pop(f)}, nil

		// ---- invocation and I/O ----
		case INVOKESTATIC:
			poolIdx, err := invokeTarget(f)
			if err != nil {
				return Result{}, err
			}
			callee, err := cf.MethodAt(poolIdx)
			if err != nil {
				return Result{}, errors.Wrap(err, "INVOKESTATIC in method "+f.MethName)
			}

			// pop the arguments into the callee's locals, last argument
			// first, so the first parameter lands in slot 0
			calleeLocals := make([]int32, callee.MaxLocals)
			for i := callee.ParamCount() - 1; i >= 0; i-- {
				calleeLocals[i] = pop(f)
			}

			ret, err := Execute(callee, calleeLocals, cf, hp)
			if err != nil {
				return Result{}, err
			}
			if ret.HasValue {
				push(f, ret.Value)
			}
			f.PC += 3
		case GETSTATIC:
			// models loading System.out; there is nothing to push in
			// this subset, the following INVOKEVIRTUAL does the printing
			f.PC += 3
		case INVOKEVIRTUAL:
			// models System.out.println(int)
			fmt.Printf("%d\n", pop(f))
			f.PC += 3

		// ---- arrays ----
		case NEWARRAY:
			// the element type byte is accepted but ignored: every
			// array in this subset is an int array
			n := pop(f)
			if n < 0 {
				return Result{}, errors.Errorf(
					"NEWARRAY: negative array size %d in method %s at pc %d", n, f.MethName, f.PC)
			}
			ref := hp.Add(heap.NewArray(n))
			push(f, int32(ref))
			f.PC += 2
		case ARRAYLENGTH:
			arr := hp.Get(heap.Ref(pop(f)))
			push(f, arr[0])
			f.PC += 1
		case IASTORE:
			value := pop(f)
			index := pop(f)
			arr := hp.Get(heap.Ref(pop(f)))
			if index < 0 || index >= arr[0] {
				return Result{}, errors.Errorf(
					"IASTORE: array index %d out of bounds in method %s at pc %d", index, f.MethName, f.PC)
			}
			arr[index+1] = value
			f.PC += 1
		case IALOAD:
			index := pop(f)
			arr := hp.Get(heap.Ref(pop(f)))
			if index < 0 || index >= arr[0] {
				return Result{}, errors.Errorf(
					"IALOAD: array index %d out of bounds in method %s at pc %d", index, f.MethName, f.PC)
			}
			push(f, arr[index+1])
			f.PC += 1

		default:
			mnemonic := BytecodeNames[opcode]
			if mnemonic == "" {
				mnemonic = "unnamed"
			}
			return Result{}, errors.Errorf(
				"invalid bytecode 0x%02X (%s) in method %s at pc %d", opcode, mnemonic, f.MethName, f.PC)
		}
	}
	return Result{}, nil
}

// branchOffset reads the two bytes after the current opcode as a
// signed big-endian 16-bit displacement. Both bytes are unsigned on
// their own; the sign lives in the composed 16-bit value.
func branchOffset(f *frames.Frame) int {
	return int(int16(uint16(f.Meth[f.PC+1])<<8 | uint16(f.Meth[f.PC+2])))
}

// branchIf takes the branch when cond holds, otherwise steps past the
// 3-byte instruction.
func branchIf(f *frames.Frame, cond bool) {
	if cond {
		f.PC += branchOffset(f)
	} else {
		f.PC += 3
	}
}

// invokeTarget reads the constant-pool operand of an invoke opcode and
// converts it to a 0-based pool index.
func invokeTarget(f *frames.Frame) (int, error) {
	if f.PC+2 >= len(f.Meth) {
		return 0, errors.Errorf(
			"truncated invoke instruction in method %s at pc %d", f.MethName, f.PC)
	}
	return (int(f.Meth[f.PC+1])<<8 | int(f.Meth[f.PC+2])) - 1, nil
}

// pop from the operand stack
func pop(f *frames.Frame) int32 {
	value := f.OpStack[f.TOS]
	f.TOS -= 1
	return value
}

// returns the value at the top of the stack without popping it off
func peek(f *frames.Frame) int32 {
	return f.OpStack[f.TOS]
}

// push onto the operand stack
func push(f *frames.Frame, x int32) {
	f.TOS += 1
	f.OpStack[f.TOS] = x
}

func traceInstr(f *frames.Frame, opcode byte) {
	fields := []zap.Field{
		zap.String("method", f.MethName),
		zap.Int("pc", f.PC),
		zap.String("opcode", BytecodeNames[opcode]),
		zap.Int("tos", f.TOS),
	}
	if f.TOS >= 0 {
		fields = append(fields, zap.Int32("top", f.OpStack[f.TOS]))
	}
	traceLog.Debug("exec", fields...)
}
