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

// Package lower translates expression trees into VIR thunks for the
// constant folder.  Only the expression forms the foldability predicate
// admits are handled; anything else declines and the folder leaves the
// expression alone.
package lower

import (
	"github.com/veridian-hdl/veridian/lang/tree"
	"github.com/veridian-hdl/veridian/lang/types"
	"github.com/veridian-hdl/veridian/lang/vir"
)

// Thunks lowers top-level expressions on demand.  It implements the
// evaluator's Lowerer surface.
type Thunks struct {
	Registry *vir.Registry
}

// LowerThunk wraps fcall in a synthetic unit with a single entry block and
// a return register.  Returns nil when the expression contains a form the
// lowering does not cover.
func (l *Thunks) LowerThunk(fcall *tree.Node) *vir.Unit {
	b := vir.NewBuilder(fcall.Ident()+"$thunk", vir.UnitThunk)

	r, ok := lowerExpr(b, fcall)
	if !ok {
		return nil
	}
	b.Return(r)

	return b.Finish()
}

// LowerUnit lowers a declaration's body.  Function bodies reach the
// registry through the analysis front end or a design library; there is
// nothing to do here.
func (l *Thunks) LowerUnit(decl *tree.Node) {}

// typeDesc maps a scalar source type to a VIR descriptor for casts.
func typeDesc(t *types.Type) *vir.Type {
	if t.BaseRecur().Kind() == types.KindReal {
		return vir.RealType()
	}
	return vir.IntType(-(1 << 62), 1<<62)
}

// lowerExpr emits ops computing t and returns the holding register.
func lowerExpr(b *vir.Builder, t *tree.Node) (vir.Reg, bool) {
	switch t.Kind() {
	case tree.KindLiteral:
		if t.LitKind() == tree.LitReal {
			return b.ConstReal(t.Rval()), true
		}
		return b.Const(t.Ival()), true

	case tree.KindRef:
		decl := t.Ref()
		switch decl.Kind() {
		case tree.KindEnumLit:
			return b.Const(decl.Ival()), true

		case tree.KindUnitDecl, tree.KindConstDecl:
			return lowerExpr(b, decl.Value())

		default:
			return vir.RegInvalid, false
		}

	case tree.KindTypeConv:
		src, ok := lowerExpr(b, t.Param(0))
		if !ok {
			return vir.RegInvalid, false
		}
		return b.Cast(typeDesc(t.Type()), src), true

	case tree.KindFuncCall:
		args := make([]vir.Reg, t.Params())
		for i := 0; i < t.Params(); i++ {
			r, ok := lowerExpr(b, t.Param(i))
			if !ok {
				return vir.RegInvalid, false
			}
			args[i] = r
		}
		return b.Fcall(t.Ident(), args...), true

	default:
		return vir.RegInvalid, false
	}
}
