// Copyright 2024 The Veridian Authors
// This file is part of Veridian.
//
// Veridian is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Veridian is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Veridian. If not, see <http://www.gnu.org/licenses/>.

package vir

import (
	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/tree"
)

// Builder constructs a unit one block at a time.  The lowering pass and the
// tests are its only clients.
type Builder struct {
	unit    *Unit
	block   *Block
	nextReg Reg
}

// NewBuilder starts a unit of the given name and kind with one empty block
// selected.
func NewBuilder(name string, kind UnitKind) *Builder {
	b := &Builder{
		unit: &Unit{Name: name, Kind: kind},
	}
	b.NewBlock()
	b.SetBlock(0)
	return b
}

// SetContext links the unit to its enclosing unit at the given depth.
func (b *Builder) SetContext(name string, depth int) {
	b.unit.Context = name
	b.unit.Depth = depth
}

// Finish completes the unit and returns it.
func (b *Builder) Finish() *Unit {
	b.unit.NumRegs = int(b.nextReg)
	return b.unit
}

// NewBlock appends an empty block and returns its index.
func (b *Builder) NewBlock() int {
	b.unit.Blocks = append(b.unit.Blocks, &Block{})
	return len(b.unit.Blocks) - 1
}

// SetBlock selects the insertion point.
func (b *Builder) SetBlock(i int) {
	b.block = b.unit.Blocks[i]
}

// NewReg allocates a fresh register.
func (b *Builder) NewReg() Reg {
	r := b.nextReg
	b.nextReg++
	return r
}

// Param allocates a leading parameter register.  Parameters must be
// declared before any other register.
func (b *Builder) Param() Reg {
	if len(b.unit.Blocks[0].Ops) > 0 {
		diag.FatalTrace("parameter declared after first op in %s", b.unit.Name)
	}
	return b.NewReg()
}

// AddVar declares a unit variable and returns its reference at the unit's
// own depth.
func (b *Builder) AddVar(ident string, typ *Type, extern bool) VarRef {
	b.unit.Vars = append(b.unit.Vars, Var{Ident: ident, Type: typ, Extern: extern})
	return VarRef{Depth: b.unit.Depth, Index: len(b.unit.Vars) - 1}
}

// Emit appends op to the selected block and returns its result register.
func (b *Builder) Emit(op Op) Reg {
	if n := len(b.block.Ops); n > 0 && b.block.Ops[n-1].Op.IsTerminator() {
		diag.FatalTrace("emit after terminator in %s", b.unit.Name)
	}
	b.block.Ops = append(b.block.Ops, op)
	return op.Result
}

// anchor fills the location from a bookmark node.
func anchor(op Op, where *tree.Node) Op {
	op.Bookmark = where
	if where != nil {
		op.Loc = where.Loc()
	}
	return op
}

// Const loads an integer immediate.
func (b *Builder) Const(v int64) Reg {
	return b.Emit(Op{Op: OpConst, Result: b.NewReg(), Value: v})
}

// ConstReal loads a floating-point immediate.
func (b *Builder) ConstReal(v float64) Reg {
	return b.Emit(Op{Op: OpConstReal, Result: b.NewReg(), Real: v})
}

// ConstArray packs the argument registers into fresh storage.
func (b *Builder) ConstArray(args ...Reg) Reg {
	return b.Emit(Op{Op: OpConstArray, Result: b.NewReg(), Args: args})
}

// Binary emits a two-operand arithmetic or logic operation.
func (b *Builder) Binary(op Opcode, lhs, rhs Reg) Reg {
	return b.Emit(Op{Op: op, Result: b.NewReg(), Args: []Reg{lhs, rhs}})
}

// Unary emits a one-operand operation.
func (b *Builder) Unary(op Opcode, arg Reg) Reg {
	return b.Emit(Op{Op: op, Result: b.NewReg(), Args: []Reg{arg}})
}

// Cmp emits a comparison with the given relation.
func (b *Builder) Cmp(kind CmpKind, lhs, rhs Reg) Reg {
	return b.Emit(Op{Op: OpCmp, Result: b.NewReg(), Cmp: kind, Args: []Reg{lhs, rhs}})
}

// Cast converts src to the domain of typ.
func (b *Builder) Cast(typ *Type, src Reg) Reg {
	return b.Emit(Op{Op: OpCast, Result: b.NewReg(), Type: typ, Args: []Reg{src}})
}

// Select yields left or right depending on test.
func (b *Builder) Select(test, left, right Reg) Reg {
	return b.Emit(Op{Op: OpSelect, Result: b.NewReg(), Args: []Reg{test, left, right}})
}

// Store writes src to a variable.
func (b *Builder) Store(v VarRef, src Reg) {
	b.Emit(Op{Op: OpStore, Result: RegInvalid, Address: v, Args: []Reg{src}})
}

// Load reads a variable.
func (b *Builder) Load(v VarRef) Reg {
	return b.Emit(Op{Op: OpLoad, Result: b.NewReg(), Address: v})
}

// StoreIndirect writes src through the pointer register ptr.
func (b *Builder) StoreIndirect(src, ptr Reg) {
	b.Emit(Op{Op: OpStoreIndirect, Result: RegInvalid, Args: []Reg{src, ptr}})
}

// LoadIndirect reads through the pointer register ptr.
func (b *Builder) LoadIndirect(ptr Reg) Reg {
	return b.Emit(Op{Op: OpLoadIndirect, Result: b.NewReg(), Args: []Reg{ptr}})
}

// Index yields a pointer to a constrained-array variable's storage.
func (b *Builder) Index(v VarRef) Reg {
	return b.Emit(Op{Op: OpIndex, Result: b.NewReg(), Address: v})
}

// Alloca reserves storage for the count held in length, or one value when
// length is RegInvalid.
func (b *Builder) Alloca(length Reg) Reg {
	op := Op{Op: OpAlloca, Result: b.NewReg()}
	if length != RegInvalid {
		op.Args = []Reg{length}
	}
	return b.Emit(op)
}

// Copy moves count values from src to dst.
func (b *Builder) Copy(dst, src, count Reg) {
	b.Emit(Op{Op: OpCopy, Result: RegInvalid, Args: []Reg{dst, src, count}})
}

// Memcmp compares count values at two pointers.
func (b *Builder) Memcmp(lhs, rhs, count Reg) Reg {
	return b.Emit(Op{Op: OpMemcmp, Result: b.NewReg(), Args: []Reg{lhs, rhs, count}})
}

// Wrap builds an unconstrained array from data and (left, right, dir)
// register triples, one per dimension.
func (b *Builder) Wrap(data Reg, dims ...Reg) Reg {
	return b.Emit(Op{Op: OpWrap, Result: b.NewReg(), Args: append([]Reg{data}, dims...)})
}

// Unwrap extracts the data pointer of an unconstrained array.
func (b *Builder) Unwrap(array Reg) Reg {
	return b.Emit(Op{Op: OpUnwrap, Result: b.NewReg(), Args: []Reg{array}})
}

// UarrayMeta projects dimension metadata: op is one of OpUarrayLen,
// OpUarrayLeft, OpUarrayRight, OpUarrayDir.
func (b *Builder) UarrayMeta(op Opcode, array Reg, dim int) Reg {
	return b.Emit(Op{Op: op, Result: b.NewReg(), Dim: dim, Args: []Reg{array}})
}

// Bounds checks reg against the static range of typ.
func (b *Builder) Bounds(reg Reg, typ *Type, kind BoundsKind, where *tree.Node) {
	b.Emit(anchor(Op{Op: OpBounds, Result: RegInvalid, Type: typ,
		Subkind: kind, Args: []Reg{reg}}, where))
}

// DynamicBounds checks reg against bounds held in registers.
func (b *Builder) DynamicBounds(reg, low, high Reg, where *tree.Node) {
	b.Emit(anchor(Op{Op: OpDynamicBounds, Result: RegInvalid,
		Args: []Reg{reg, low, high}}, where))
}

// IndexCheck validates [low, high] against the static range of typ.
func (b *Builder) IndexCheck(low, high Reg, typ *Type) {
	b.Emit(Op{Op: OpIndexCheck, Result: RegInvalid, Type: typ, Args: []Reg{low, high}})
}

// DynamicIndexCheck validates [low, high] against a parent range held in
// registers.
func (b *Builder) DynamicIndexCheck(low, high, min, max Reg) {
	b.Emit(Op{Op: OpIndexCheck, Result: RegInvalid, Args: []Reg{low, high, min, max}})
}

// Assert checks test, reporting the message at the given severity when it
// is false.
func (b *Builder) Assert(test, severity, text, length Reg, where *tree.Node) {
	b.Emit(anchor(Op{Op: OpAssert, Result: RegInvalid,
		Args: []Reg{test, severity, text, length}}, where))
}

// Report unconditionally emits the message at the given severity.
func (b *Builder) Report(severity, text, length Reg, where *tree.Node) {
	b.Emit(anchor(Op{Op: OpReport, Result: RegInvalid,
		Args: []Reg{severity, text, length}}, where))
}

// Image yields the textual representation of object.
func (b *Builder) Image(object Reg, where *tree.Node) Reg {
	return b.Emit(anchor(Op{Op: OpImage, Result: b.NewReg(),
		Args: []Reg{object}}, where))
}

// Fcall calls the named unit with the given argument registers.
func (b *Builder) Fcall(name string, args ...Reg) Reg {
	return b.Emit(Op{Op: OpFcall, Result: b.NewReg(), Func: name, Args: args})
}

// Undefined marks a read of an object with no compile-time value.
func (b *Builder) Undefined() Reg {
	return b.Emit(Op{Op: OpUndefined, Result: b.NewReg()})
}

// Jump transfers to target.
func (b *Builder) Jump(target int) {
	b.Emit(Op{Op: OpJump, Result: RegInvalid, Targets: []int{target}})
}

// Cond transfers to ifTrue or ifFalse depending on test.
func (b *Builder) Cond(test Reg, ifTrue, ifFalse int) {
	b.Emit(Op{Op: OpCond, Result: RegInvalid, Args: []Reg{test},
		Targets: []int{ifTrue, ifFalse}})
}

// Case transfers to the target paired with the first key register equal to
// test, or to def.  Keys and targets are parallel.
func (b *Builder) Case(test Reg, def int, keys []Reg, targets []int) {
	if len(keys) != len(targets) {
		diag.FatalTrace("case keys and targets differ in length")
	}
	b.Emit(Op{Op: OpCase, Result: RegInvalid,
		Args:    append([]Reg{test}, keys...),
		Targets: append([]int{def}, targets...)})
}

// Return ends the unit; result may be RegInvalid for procedures and
// context setup blocks.
func (b *Builder) Return(result Reg) {
	op := Op{Op: OpReturn, Result: RegInvalid}
	if result != RegInvalid {
		op.Args = []Reg{result}
	}
	b.Emit(op)
}

// Comment records a lowering note.
func (b *Builder) Comment(text string) {
	b.Emit(Op{Op: OpComment, Result: RegInvalid, Func: text})
}
