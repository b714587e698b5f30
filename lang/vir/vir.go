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
	"fmt"
	"sort"
	"strings"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/tree"
)

// Reg names a unit-local register.  RegInvalid marks an absent result.
type Reg int

// RegInvalid is the nil register.
const RegInvalid Reg = -1

// UnitKind categorizes a VIR unit.
type UnitKind int

const (
	// UnitFunction is a lowered function body.
	UnitFunction UnitKind = iota
	// UnitProcedure is a lowered procedure body.
	UnitProcedure
	// UnitContext holds the module-level initializers of an enclosing
	// scope; its first block runs before any variable in the scope is read.
	UnitContext
	// UnitThunk wraps a single top-level expression so that evaluation has
	// an entry point and a return register.  Thunks have no enclosing unit.
	UnitThunk
)

func (k UnitKind) String() string {
	switch k {
	case UnitFunction:
		return "function"
	case UnitProcedure:
		return "procedure"
	case UnitContext:
		return "context"
	case UnitThunk:
		return "thunk"
	default:
		return fmt.Sprintf("unit(%d)", int(k))
	}
}

// CmpKind is the relation tested by OpCmp.
type CmpKind int

const (
	CmpEq CmpKind = iota
	CmpNeq
	CmpGt
	CmpGeq
	CmpLt
	CmpLeq
)

var cmpNames = [...]string{"==", "/=", ">", ">=", "<", "<="}

func (c CmpKind) String() string {
	if int(c) < len(cmpNames) {
		return cmpNames[c]
	}
	return fmt.Sprintf("cmp(%d)", int(c))
}

// RangeKind is the direction of an array dimension.
type RangeKind int

const (
	// DirTo is an ascending range.
	DirTo RangeKind = iota
	// DirDownto is a descending range.
	DirDownto
)

func (r RangeKind) String() string {
	if r == DirTo {
		return "to"
	}
	return "downto"
}

// BoundsKind is the flavor of a bounds check, selecting the wording of the
// diagnostic when the check fails.
type BoundsKind int

const (
	BoundsArrayTo BoundsKind = iota
	BoundsArrayDownto
)

// TypeKind categorizes a VIR type descriptor.
type TypeKind int

const (
	TypeInt TypeKind = iota
	TypeReal
	TypeOffset
	TypePointer
	TypeCarray
	TypeUarray
)

func (k TypeKind) String() string {
	switch k {
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypeOffset:
		return "offset"
	case TypePointer:
		return "pointer"
	case TypeCarray:
		return "carray"
	case TypeUarray:
		return "uarray"
	default:
		return fmt.Sprintf("type(%d)", int(k))
	}
}

// Type is a static type descriptor attached to operations and variables.
// Low and High bound integer ranges; Size is the element count of a
// constrained array.
type Type struct {
	Kind TypeKind
	Low  int64
	High int64
	Size int
}

// IntType returns an integer descriptor with the given range.
func IntType(low, high int64) *Type {
	return &Type{Kind: TypeInt, Low: low, High: high}
}

// RealType returns a floating-point descriptor.
func RealType() *Type {
	return &Type{Kind: TypeReal}
}

// OffsetType returns a pointer-offset descriptor.
func OffsetType() *Type {
	return &Type{Kind: TypeOffset}
}

// CarrayType returns a constrained-array descriptor of size elements.
func CarrayType(size int) *Type {
	return &Type{Kind: TypeCarray, Size: size}
}

// UarrayType returns an unconstrained-array descriptor.
func UarrayType() *Type {
	return &Type{Kind: TypeUarray}
}

// Var is a unit-local variable declaration.  Extern variables live outside
// the compile-time universe and cannot be evaluated.
type Var struct {
	Ident  string
	Type   *Type
	Extern bool
}

// VarRef names a variable by the context depth of its declaring unit and
// its index there.  A reference whose depth is less than the depth of the
// unit it appears in reaches into an enclosing lexical scope.
type VarRef struct {
	Depth int
	Index int
}

// Op is a single VIR instruction.  Which fields are meaningful depends on
// the opcode; unused fields hold their zero value.
type Op struct {
	Op       Opcode
	Result   Reg
	Args     []Reg
	Value    int64      // integer immediate
	Real     float64    // floating-point immediate
	Cmp      CmpKind    // relation for OpCmp
	Func     string     // callee for OpFcall
	Targets  []int      // successor blocks for terminators / case keys
	Type     *Type      // static type descriptor
	Dim      int        // dimension selector for uarray projections
	Address  VarRef     // variable operand for load/store/index
	Subkind  BoundsKind // wording selector for OpBounds
	Loc      diag.Loc   // source anchor, always available
	Bookmark *tree.Node // origin AST node, or nil when none was given
}

// String renders the operation for disassembly listings.
func (op *Op) String() string {
	var b strings.Builder
	if op.Result != RegInvalid {
		fmt.Fprintf(&b, "%%%d = ", op.Result)
	}
	b.WriteString(op.Op.String())
	switch op.Op {
	case OpConst:
		fmt.Fprintf(&b, " %d", op.Value)
	case OpConstReal:
		fmt.Fprintf(&b, " %g", op.Real)
	case OpCmp:
		fmt.Fprintf(&b, " %s", op.Cmp)
	case OpFcall, OpNestedFcall:
		fmt.Fprintf(&b, " %s", op.Func)
	case OpStore, OpLoad, OpIndex:
		fmt.Fprintf(&b, " var(%d,%d)", op.Address.Depth, op.Address.Index)
	}
	for _, a := range op.Args {
		fmt.Fprintf(&b, " %%%d", a)
	}
	for _, t := range op.Targets {
		fmt.Fprintf(&b, " ^%d", t)
	}
	return b.String()
}

// Block is a straight-line run of operations ending in one terminator.
type Block struct {
	Ops []Op
}

// Unit is a single lowered function, procedure, context, or thunk.
type Unit struct {
	Name    string
	Kind    UnitKind
	Context string // name of the enclosing unit, empty for roots and thunks
	Depth   int    // lexical nesting depth; roots are 0
	Blocks  []*Block
	NumRegs int
	Vars    []Var
}

// ---- Registry and cursor ---------------------------------------------------

// Registry holds every lowered unit of the design plus the process-wide
// cursor naming the unit and block the interpreter is positioned at.  Every
// cross-unit dispatch must bracket itself with Save and Restore.
type Registry struct {
	units map[string]*Unit
	unit  *Unit
	block int
}

// State is a saved cursor position.
type State struct {
	unit  *Unit
	block int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]*Unit)}
}

// Register adds unit under its name, replacing any previous entry.
func (r *Registry) Register(u *Unit) {
	r.units[u.Name] = u
}

// Find returns the unit registered under name, or nil.
func (r *Registry) Find(name string) *Unit {
	return r.units[name]
}

// Names returns the registered unit names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select positions the cursor at block 0 of u.  The unit need not be
// registered; thunks are selected directly.
func (r *Registry) Select(u *Unit) {
	r.unit = u
	r.block = 0
}

// SelectBlock positions the cursor at block b of the selected unit.
func (r *Registry) SelectBlock(b int) {
	if r.unit == nil || b < 0 || b >= len(r.unit.Blocks) {
		diag.FatalTrace("select block %d outside unit", b)
	}
	r.block = b
}

// Unit returns the selected unit.
func (r *Registry) Unit() *Unit {
	if r.unit == nil {
		diag.FatalTrace("no unit selected")
	}
	return r.unit
}

// Block returns the selected block.
func (r *Registry) Block() *Block {
	return r.Unit().Blocks[r.block]
}

// Save captures the cursor for later Restore.
func (r *Registry) Save() State {
	return State{unit: r.unit, block: r.block}
}

// Restore resets the cursor to a previously saved position.
func (r *Registry) Restore(s State) {
	r.unit = s.unit
	r.block = s.block
}
