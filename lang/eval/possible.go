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

package eval

import (
	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/tree"
)

// Possible is the syntactic pre-check deciding whether t is worth lowering
// and interpreting at all.  It never inspects VIR; only the shape of the
// expression and the purity of referenced declarations.
func Possible(t *tree.Node, flags Flags) bool {
	switch t.Kind() {
	case tree.KindFuncCall:
		if t.Ref().Flags()&tree.FlagImpure != 0 {
			return false
		}

		nparams := t.Params()
		for i := 0; i < nparams; i++ {
			p := t.Param(i)
			fcall := p.Kind() == tree.KindFuncCall
			if flags&FlagFolding != 0 && fcall && p.Type().IsScalar() {
				// Would have been folded already if possible
				return false
			} else if fcall && flags&FlagFCall == 0 {
				return false
			} else if !Possible(p, flags) {
				return false
			}
		}

		return true

	case tree.KindLiteral:
		return true

	case tree.KindTypeConv:
		return Possible(t.Param(0), flags)

	case tree.KindRef:
		decl := t.Ref()
		switch decl.Kind() {
		case tree.KindUnitDecl, tree.KindEnumLit:
			return true

		case tree.KindConstDecl:
			return Possible(decl.Value(), flags)

		default:
			return false
		}

	default:
		if flags&FlagWarn != 0 {
			diag.WarnAt(t.Loc(), "expression prevents constant folding")
		}
		return false
	}
}
