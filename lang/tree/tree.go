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

// Package tree defines the abstract syntax tree shared by the analysis and
// folding passes.  Nodes are mutable and rewritten in place; references
// point at the declaration they resolve to.
package tree

import (
	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/types"
)

// Kind identifies the syntactic form of a node.
type Kind int

const (
	KindInvalid Kind = iota
	KindFuncCall
	KindLiteral
	KindRef
	KindTypeConv
	KindAggregate
	KindFuncDecl
	KindConstDecl
	KindUnitDecl
	KindEnumLit
	KindSignalDecl
	KindPackage
)

// Flags carries declaration attributes.
type Flags int

const (
	// FlagImpure marks a function whose result may differ between calls
	// with equal arguments.
	FlagImpure Flags = 1 << iota
)

// LiteralKind distinguishes the payload of a literal node.
type LiteralKind int

const (
	LitInteger LiteralKind = iota
	LitReal
)

// Node is a single AST node.
type Node struct {
	kind   Kind
	ident  string
	loc    diag.Loc
	typ    *types.Type
	flags  Flags
	ref    *Node   // declaration a reference resolves to
	value  *Node   // declaration initializer
	params []*Node // call arguments / conversion operand / package decls
	litk   LiteralKind
	ival   int64
	rval   float64
}

// Kind returns the syntactic form of the node.
func (n *Node) Kind() Kind { return n.kind }

// Ident returns the node's identifier, if any.
func (n *Node) Ident() string { return n.ident }

// Loc returns the node's source location.
func (n *Node) Loc() diag.Loc { return n.loc }

// Type returns the node's resolved type.
func (n *Node) Type() *types.Type { return n.typ }

// Flags returns the declaration attributes of the node.
func (n *Node) Flags() Flags { return n.flags }

// Ref returns the declaration a reference or call resolves to.
func (n *Node) Ref() *Node { return n.ref }

// Value returns a declaration's initializer.
func (n *Node) Value() *Node { return n.value }

// Params returns the number of parameters of a call or container node.
func (n *Node) Params() int { return len(n.params) }

// Param returns the i'th parameter value.
func (n *Node) Param(i int) *Node { return n.params[i] }

// LitKind returns the payload kind of a literal node.
func (n *Node) LitKind() LiteralKind { return n.litk }

// Ival returns the integer payload of a literal or the position of an
// enumeration literal.
func (n *Node) Ival() int64 { return n.ival }

// Rval returns the floating-point payload of a literal.
func (n *Node) Rval() float64 { return n.rval }

// SetLoc overrides the node's source location.
func (n *Node) SetLoc(loc diag.Loc) { n.loc = loc }

// ---- Constructors ----------------------------------------------------------

// NewFuncCall returns a call of decl with the given argument values.
func NewFuncCall(loc diag.Loc, decl *Node, typ *types.Type, args ...*Node) *Node {
	return &Node{
		kind:   KindFuncCall,
		ident:  decl.ident,
		loc:    loc,
		typ:    typ,
		ref:    decl,
		params: args,
	}
}

// NewIntLiteral returns an integer literal node.
func NewIntLiteral(loc diag.Loc, typ *types.Type, v int64) *Node {
	return &Node{kind: KindLiteral, loc: loc, typ: typ, litk: LitInteger, ival: v}
}

// NewRealLiteral returns a floating-point literal node.
func NewRealLiteral(loc diag.Loc, typ *types.Type, v float64) *Node {
	return &Node{kind: KindLiteral, loc: loc, typ: typ, litk: LitReal, rval: v}
}

// NewRef returns a reference to decl.
func NewRef(loc diag.Loc, decl *Node) *Node {
	return &Node{kind: KindRef, ident: decl.ident, loc: loc, typ: decl.typ, ref: decl}
}

// NewTypeConv returns a conversion of value to typ.
func NewTypeConv(loc diag.Loc, typ *types.Type, value *Node) *Node {
	return &Node{kind: KindTypeConv, loc: loc, typ: typ, params: []*Node{value}}
}

// NewAggregate returns an aggregate expression node; aggregates are opaque
// to the folder.
func NewAggregate(loc diag.Loc, typ *types.Type, fields ...*Node) *Node {
	return &Node{kind: KindAggregate, loc: loc, typ: typ, params: fields}
}

// NewFuncDecl returns a function declaration.  The ident is the fully
// qualified name lowering uses to locate the function's code.
func NewFuncDecl(ident string, typ *types.Type, flags Flags) *Node {
	return &Node{kind: KindFuncDecl, ident: ident, typ: typ, flags: flags}
}

// NewConstDecl returns a constant declaration with the given initializer.
func NewConstDecl(ident string, typ *types.Type, value *Node) *Node {
	return &Node{kind: KindConstDecl, ident: ident, typ: typ, value: value}
}

// NewUnitDecl returns a physical unit declaration whose value is the unit's
// multiple of the primary unit.
func NewUnitDecl(ident string, typ *types.Type, value *Node) *Node {
	return &Node{kind: KindUnitDecl, ident: ident, typ: typ, value: value}
}

// NewEnumLit returns an enumeration literal declaration at position pos.
func NewEnumLit(ident string, typ *types.Type, pos int64) *Node {
	return &Node{kind: KindEnumLit, ident: ident, typ: typ, ival: pos}
}

// NewSignalDecl returns a signal declaration; signals are never foldable.
func NewSignalDecl(ident string, typ *types.Type) *Node {
	return &Node{kind: KindSignalDecl, ident: ident, typ: typ}
}

// NewPackage returns a package container holding decls.
func NewPackage(ident string, decls ...*Node) *Node {
	return &Node{kind: KindPackage, ident: ident, params: decls}
}

// ---- Literal wrapping ------------------------------------------------------

// IntLitFor returns an integer literal carrying origin's type and location.
// Folding uses this to substitute a computed value for a call node.
func IntLitFor(origin *Node, v int64) *Node {
	return NewIntLiteral(origin.loc, origin.typ, v)
}

// RealLitFor returns a real literal carrying origin's type and location.
func RealLitFor(origin *Node, v float64) *Node {
	return NewRealLiteral(origin.loc, origin.typ, v)
}

// EnumLitFor returns a reference to the enumeration literal of origin's
// type at position pos.
func EnumLitFor(origin *Node, pos int64) *Node {
	name, ok := origin.typ.EnumLiteral(int(pos))
	if !ok {
		diag.FatalTrace("enumeration position %d out of range for %s",
			pos, origin.typ.Ident())
	}
	lit := NewEnumLit(name, origin.typ, pos)
	return NewRef(origin.loc, lit)
}
