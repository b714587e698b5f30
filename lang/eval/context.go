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
	"github.com/veridian-hdl/veridian/lang/vir"
)

// context is the register file and variable slots of one unit invocation.
// The parent link chains to the lexically enclosing scope and is populated
// lazily the first time an enclosing variable is touched; once linked it is
// never reassigned.
type context struct {
	parent *context
	regs   []Value
	vars   []Value
}

// newContext builds a context for the registry's selected unit,
// initializing every variable from its declared type.  Constrained arrays
// draw their storage from the evaluation heap.
func (s *state) newContext() *context {
	unit := s.reg.Unit()
	ctx := &context{
		regs: make([]Value, unit.NumRegs),
		vars: make([]Value, len(unit.Vars)),
	}
	for i := range unit.Vars {
		typ := unit.Vars[i].Type
		switch typ.Kind {
		case vir.TypeCarray:
			p, ok := s.heap.allocValues(typ.Size)
			if !ok {
				s.failHeap(typ.Size * valueBytes)
				return ctx
			}
			ctx.vars[i] = Value{Kind: ValueCarray, Pointer: p}

		case vir.TypeInt, vir.TypeOffset:
			ctx.vars[i] = Value{Kind: ValueInteger}

		case vir.TypeReal:
			ctx.vars[i] = Value{Kind: ValueReal}

		case vir.TypeUarray:
			ctx.vars[i] = Value{Kind: ValueUarray}

		default:
			s.warnf(s.fcall, "variable %s with type %s prevents constant folding",
				unit.Vars[i].Ident, typ.Kind)
			s.failed = true
		}
	}
	return ctx
}

// regval returns the register slot r of the current context.
func (s *state) regval(r vir.Reg) *Value {
	return &s.ctx.regs[r]
}

// varval resolves a variable reference, materializing enclosing scopes on
// demand.  Returns nil after setting the failure flag when the variable
// cannot be evaluated.
func (s *state) varval(ref vir.VarRef) *Value {
	// Resolve the declaring unit first so the extern check runs before
	// any enclosing context is built.
	unit := s.reg.Unit()
	owner := unit
	for owner.Depth > ref.Depth {
		if owner.Context == "" {
			diag.FatalTrace("variable at depth %d unreachable from %s",
				ref.Depth, unit.Name)
		}
		owner = s.reg.Find(owner.Context)
		if owner == nil {
			diag.FatalTrace("missing context unit for %s", unit.Name)
		}
	}
	if owner.Vars[ref.Index].Extern {
		s.failed = true
		return nil
	}

	ctx, cur := s.ctx, unit
	for depth := unit.Depth; depth > ref.Depth; depth-- {
		if ctx.parent == nil {
			if cur.Kind == vir.UnitThunk {
				diag.FatalTrace("enclosing scope access from thunk")
			}

			saved := s.reg.Save()
			s.reg.Select(s.reg.Find(cur.Context))
			if s.reg.Unit().Kind != vir.UnitContext {
				diag.FatalTrace("%s is not a context unit", s.reg.Unit().Name)
			}
			s.reg.SelectBlock(0)

			// Run the enclosing scope's setup block so module-level
			// initializers take effect before the variable is read.
			sub := &state{
				ev:     s.ev,
				result: vir.RegInvalid,
				fcall:  s.fcall,
				flags:  s.flags | FlagBounds,
				heap:   s.heap,
				reg:    s.reg,
			}
			sub.ctx = sub.newContext()
			ctx.parent = sub.ctx
			if !sub.failed {
				sub.interp()
			}
			s.reg.Restore(saved)

			if sub.failed {
				s.failed = true
				return nil
			}
		}
		ctx = ctx.parent
		cur = s.reg.Find(cur.Context)
	}

	return &ctx.vars[ref.Index]
}
