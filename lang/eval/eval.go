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

// Package eval implements the constant-folding evaluator.  A syntactic
// function call is lowered to a thunk of VIR and interpreted; when the
// interpretation succeeds and yields a scalar, the call node is replaced by
// a literal of the same type.  Failure is ordinary and silent: the call is
// left untouched and the program behaves as if folding had never been
// attempted.
package eval

import (
	"os"
	"strings"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/tree"
	"github.com/veridian-hdl/veridian/lang/vir"
)

// Flags select what an evaluation is allowed to do.
type Flags uint32

const (
	// FlagFCall permits interpretation of nested function calls in VIR.
	FlagFCall Flags = 1 << iota
	// FlagFolding marks the top-level folder pass; scalar sub-calls that
	// survived earlier folding are known unfoldable and rejected early.
	FlagFolding
	// FlagBounds reports bounds-check violations as user-visible errors.
	FlagBounds
	// FlagReport lets report and assert statements emit their messages.
	// Without it their presence forces failure so runtime-visible output
	// is not lost.
	FlagReport
	// FlagWarn explains why folding gave up.
	FlagWarn
	// FlagVerbose traces each successful fold; implies FlagWarn and
	// FlagBounds.
	FlagVerbose
)

// Lowerer produces VIR for a syntactic call on demand.  LowerThunk may
// decline by returning nil; LowerUnit registers a unit's lowered body with
// the registry, if it can.
type Lowerer interface {
	LowerThunk(fcall *tree.Node) *vir.Unit
	LowerUnit(decl *tree.Node)
}

// Library is one on-disk design library.
type Library interface {
	Get(unitName string) (*tree.Node, error)
	LoadVcode(unitName string, reg *vir.Registry) error
}

// LibraryResolver locates design libraries by name.
type LibraryResolver interface {
	Find(name string) (Library, bool)
}

// Evaluator folds calls against a registry of lowered units.  The zero
// value is not usable; Registry must be set, and Lower must be set for Eval
// to attempt anything.
type Evaluator struct {
	Registry *vir.Registry
	Lower    Lowerer
	Libs     LibraryResolver

	errors int
}

// Errors returns the cumulative count of bounds errors reported while
// folding with FlagBounds.
func (ev *Evaluator) Errors() int { return ev.errors }

// state is the mutable condition of one unit invocation.
type state struct {
	ev       *Evaluator
	ctx      *context
	result   vir.Reg
	fcall    *tree.Node
	flags    Flags
	failed   bool
	heap     *heap
	reg      *vir.Registry
	branch   int
	returned bool
}

// interp runs the dispatch loop from the registry's selected block until a
// return, a failure, or a block with no successor.  Terminators redirect by
// setting branch; the loop re-enters on the new block rather than
// recursing.
func (s *state) interp() {
	for !s.failed {
		s.branch = -1
		s.returned = false

		ops := s.reg.Block().Ops
		for i := range ops {
			if s.failed {
				return
			}
			s.exec(&ops[i])
			if s.returned || s.branch >= 0 {
				break
			}
		}

		if s.returned || s.failed || s.branch < 0 {
			return
		}
		s.reg.SelectBlock(s.branch)
	}
}

// exec dispatches one operation to its handler.
//
//nolint:gocyclo
func (s *state) exec(op *vir.Op) {
	switch op.Op {
	case vir.OpComment:

	case vir.OpConst:
		s.opConst(op)
	case vir.OpConstReal:
		s.opConstReal(op)
	case vir.OpConstArray:
		s.opConstArray(op)
	case vir.OpAdd:
		s.opAdd(op)
	case vir.OpSub:
		s.opSub(op)
	case vir.OpMul:
		s.opMul(op)
	case vir.OpDiv:
		s.opDiv(op)
	case vir.OpMod:
		s.opMod(op)
	case vir.OpRem:
		s.opRem(op)
	case vir.OpExp:
		s.opExp(op)
	case vir.OpNeg:
		s.opNeg(op)
	case vir.OpAbs:
		s.opAbs(op)
	case vir.OpNot:
		s.opNot(op)
	case vir.OpAnd:
		s.opAnd(op)
	case vir.OpOr:
		s.opOr(op)
	case vir.OpCmp:
		s.opCmp(op)
	case vir.OpSelect:
		s.opSelect(op)
	case vir.OpCast:
		s.opCast(op)
	case vir.OpStore:
		s.opStore(op)
	case vir.OpLoad:
		s.opLoad(op)
	case vir.OpStoreIndirect:
		s.opStoreIndirect(op)
	case vir.OpLoadIndirect:
		s.opLoadIndirect(op)
	case vir.OpIndex:
		s.opIndex(op)
	case vir.OpAlloca:
		s.opAlloca(op)
	case vir.OpCopy:
		s.opCopy(op)
	case vir.OpMemcmp:
		s.opMemcmp(op)
	case vir.OpWrap:
		s.opWrap(op)
	case vir.OpUnwrap:
		s.opUnwrap(op)
	case vir.OpUarrayLen:
		s.opUarrayLen(op)
	case vir.OpUarrayLeft:
		s.opUarrayLeft(op)
	case vir.OpUarrayRight:
		s.opUarrayRight(op)
	case vir.OpUarrayDir:
		s.opUarrayDir(op)
	case vir.OpBounds:
		s.opBounds(op)
	case vir.OpDynamicBounds:
		s.opDynamicBounds(op)
	case vir.OpIndexCheck:
		s.opIndexCheck(op)
	case vir.OpAssert:
		s.opAssert(op)
	case vir.OpReport:
		s.opReport(op)
	case vir.OpImage:
		s.opImage(op)
	case vir.OpFcall:
		if s.flags&FlagFCall != 0 {
			s.opFcall(op)
		} else {
			s.failed = true
		}
	case vir.OpNestedFcall:
		s.opNestedFcall(op)
	case vir.OpUndefined:
		s.opUndefined(op)
	case vir.OpJump:
		s.opJump(op)
	case vir.OpCond:
		s.opCond(op)
	case vir.OpCase:
		s.opCase(op)
	case vir.OpReturn:
		s.opReturn(op)

	case vir.OpHeapSave, vir.OpHeapRestore:
		// Runtime bookkeeping; the arena lives exactly as long as the
		// evaluation.

	default:
		diag.FatalTrace("cannot evaluate vir op %s", op.Op)
	}
}

// resolveUnit locates the VIR for a call target that is not yet in the
// registry, loading it from an on-disk library when possible.  Returns nil
// when the unit cannot be found.
func (ev *Evaluator) resolveUnit(funcName string, s *state) *vir.Unit {
	if ev.Libs == nil {
		return nil
	}

	// The callee is named LIB.UNIT...FUNC; strip the function's own
	// identifier to get the owning unit, then the library prefix.
	dot := strings.LastIndex(funcName, ".")
	if dot < 0 {
		return nil
	}
	unitName := funcName[:dot]
	libName := unitName
	if i := strings.Index(unitName, "."); i >= 0 {
		libName = unitName[:i]
	}
	if libName == unitName {
		return nil
	}

	lib, ok := ev.Libs.Find(libName)
	if !ok {
		return nil
	}

	unit, err := lib.Get(unitName)
	if err != nil {
		return nil
	}

	ev.loadVcode(lib, unitName, s)

	if unit.Kind() == tree.KindPackage {
		bodyName := unitName + "-body"
		if _, err := lib.Get(bodyName); err == nil {
			ev.loadVcode(lib, bodyName, s)
		}
	}

	return ev.Registry.Find(funcName)
}

// loadVcode pulls a unit's lowered form out of lib into the registry.
func (ev *Evaluator) loadVcode(lib Library, unitName string, s *state) {
	if s.flags&FlagVerbose != 0 {
		diag.Notef("loading vcode for %s", unitName)
	}
	if err := lib.LoadVcode(unitName, ev.Registry); err != nil {
		s.warnf(s.fcall, "cannot load vcode for %s", unitName)
	}
}

// Eval attempts to compute fcall at compile time.  It returns a literal
// node carrying the result, or fcall itself when folding is not possible.
func (ev *Evaluator) Eval(fcall *tree.Node, flags Flags) *tree.Node {
	if fcall.Kind() != tree.KindFuncCall {
		diag.FatalTrace("eval of %d node", fcall.Kind())
	}

	typ := fcall.Type()
	if !typ.IsScalar() {
		return fcall
	}

	if !Possible(fcall, flags) {
		return fcall
	}

	if os.Getenv("NVC_EVAL_VERBOSE") != "" {
		flags |= FlagVerbose
	}
	if flags&FlagVerbose != 0 {
		flags |= FlagWarn | FlagBounds
	}

	thunk := ev.Lower.LowerThunk(fcall)
	if thunk == nil {
		return fcall
	}

	if flags&FlagVerbose != 0 {
		diag.NoteAt(fcall.Loc(), "evaluate thunk for %s", fcall.Ident())
	}

	saved := ev.Registry.Save()
	defer ev.Registry.Restore(saved)
	ev.Registry.Select(thunk)

	s := &state{
		ev:     ev,
		result: vir.RegInvalid,
		fcall:  fcall,
		flags:  flags,
		heap:   &heap{},
		reg:    ev.Registry,
	}
	s.ctx = s.newContext()
	if !s.failed {
		s.interp()
	}

	if s.failed {
		return fcall
	}

	if s.result == vir.RegInvalid {
		diag.FatalTrace("thunk for %s did not return a value", fcall.Ident())
	}
	result := s.ctx.regs[s.result]

	if flags&FlagVerbose != 0 {
		if result.Kind == ValueInteger {
			diag.NoteAt(fcall.Loc(), "%s returned %d", fcall.Ident(),
				result.Integer)
		} else {
			diag.NoteAt(fcall.Loc(), "%s returned %f", fcall.Ident(),
				result.Real)
		}
	}

	switch result.Kind {
	case ValueInteger:
		if typ.IsEnum() {
			return tree.EnumLitFor(fcall, result.Integer)
		}
		return tree.IntLitFor(fcall, result.Integer)

	case ValueReal:
		return tree.RealLitFor(fcall, result.Real)

	default:
		diag.FatalTrace("eval result is not scalar")
		return fcall
	}
}

// Fold rewrites root in place, replacing every foldable function call with
// a literal and propagating literal-valued constants through references.
func (ev *Evaluator) Fold(root *tree.Node) *tree.Node {
	return tree.Rewrite(root, func(t *tree.Node) *tree.Node {
		switch t.Kind() {
		case tree.KindFuncCall:
			return ev.Eval(t, FlagFCall|FlagFolding)

		case tree.KindRef:
			decl := t.Ref()
			switch decl.Kind() {
			case tree.KindConstDecl:
				if v := decl.Value(); v != nil && v.Kind() == tree.KindLiteral {
					return v
				}
				return t

			case tree.KindUnitDecl:
				return decl.Value()

			default:
				return t
			}

		default:
			return t
		}
	})
}
