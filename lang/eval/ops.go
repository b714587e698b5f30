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
	"math"
	"strconv"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/tree"
	"github.com/veridian-hdl/veridian/lang/types"
	"github.com/veridian-hdl/veridian/lang/vir"
)

// warnf emits a folding diagnostic anchored at t when warnings are enabled.
func (s *state) warnf(t *tree.Node, format string, args ...interface{}) {
	if s.flags&FlagWarn != 0 {
		diag.WarnAt(t.Loc(), format, args...)
	}
}

// failHeap records arena exhaustion as an ordinary folding failure.
func (s *state) failHeap(requested int) {
	s.warnf(s.fcall, "evaluation heap exhaustion prevents constant folding "+
		"(%d allocated, %d requested)", s.heap.bytes, requested)
	s.failed = true
}

// allocValues draws a run of slots from the arena, failing the evaluation
// on exhaustion.
func (s *state) allocValues(n int) (Pointer, bool) {
	p, ok := s.heap.allocValues(n)
	if !ok {
		s.failHeap(n * valueBytes)
	}
	return p, ok
}

// allocUArray draws an array descriptor from the arena.
func (s *state) allocUArray() (*UArray, bool) {
	ua, ok := s.heap.allocUArray()
	if !ok {
		s.failHeap(uarrayBytes)
	}
	return ua, ok
}

// ---- Constants -------------------------------------------------------------

func (s *state) opConst(op *vir.Op) {
	s.regval(op.Result).setInt(op.Value)
}

func (s *state) opConstReal(op *vir.Op) {
	s.regval(op.Result).setReal(op.Real)
}

func (s *state) opConstArray(op *vir.Op) {
	dst := s.regval(op.Result)
	p, ok := s.allocValues(len(op.Args))
	if !ok {
		return
	}
	for i, a := range op.Args {
		*p.At(int64(i)) = *s.regval(a)
	}
	dst.setPointer(p)
}

// ---- Arithmetic ------------------------------------------------------------

func (s *state) opAdd(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	switch lhs.Kind {
	case ValueInteger:
		dst.setInt(lhs.Integer + rhs.Integer)

	case ValueReal:
		dst.setReal(lhs.Real + rhs.Real)

	case ValuePointer:
		if rhs.Kind != ValueInteger {
			diag.FatalTrace("pointer add with %s offset", rhs.Kind)
		}
		dst.setPointer(lhs.Pointer.Add(rhs.Integer))

	default:
		diag.FatalTrace("invalid value type %s in add", lhs.Kind)
	}
}

func (s *state) opSub(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	switch lhs.Kind {
	case ValueInteger:
		dst.setInt(lhs.Integer - rhs.Integer)

	case ValueReal:
		dst.setReal(lhs.Real - rhs.Real)

	default:
		diag.FatalTrace("invalid value type %s in sub", lhs.Kind)
	}
}

func (s *state) opMul(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	switch lhs.Kind {
	case ValueInteger:
		dst.setInt(lhs.Integer * rhs.Integer)

	case ValueReal:
		dst.setReal(lhs.Real * rhs.Real)

	default:
		diag.FatalTrace("invalid value type %s in mul", lhs.Kind)
	}
}

func (s *state) opDiv(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	switch lhs.Kind {
	case ValueInteger:
		if rhs.Integer == 0 {
			diag.FatalAt(s.fcall.Loc(), "division by zero")
		}
		dst.setInt(lhs.Integer / rhs.Integer)

	case ValueReal:
		dst.setReal(lhs.Real / rhs.Real)

	default:
		diag.FatalTrace("invalid value type %s in div", lhs.Kind)
	}
}

func (s *state) opMod(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	switch lhs.Kind {
	case ValueInteger:
		if rhs.Integer == 0 {
			diag.FatalAt(s.fcall.Loc(), "division by zero")
		}
		r := lhs.Integer % rhs.Integer
		if r < 0 {
			r = -r
		}
		dst.setInt(r)

	default:
		diag.FatalTrace("invalid value type %s in mod", lhs.Kind)
	}
}

func (s *state) opRem(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	switch lhs.Kind {
	case ValueInteger:
		if rhs.Integer == 0 {
			diag.FatalAt(s.fcall.Loc(), "division by zero")
		}
		dst.setInt(lhs.Integer - (lhs.Integer/rhs.Integer)*rhs.Integer)

	default:
		diag.FatalTrace("invalid value type %s in rem", lhs.Kind)
	}
}

func (s *state) opExp(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	if lhs.Kind != ValueReal || rhs.Kind != ValueReal {
		diag.FatalTrace("invalid value type %s in exp", lhs.Kind)
	}
	dst.setReal(math.Pow(lhs.Real, rhs.Real))
}

func (s *state) opNeg(op *vir.Op) {
	dst := s.regval(op.Result)
	src := s.regval(op.Args[0])

	switch src.Kind {
	case ValueInteger:
		dst.setInt(-src.Integer)

	case ValueReal:
		dst.setReal(-src.Real)

	default:
		diag.FatalTrace("invalid value type %s in neg", src.Kind)
	}
}

func (s *state) opAbs(op *vir.Op) {
	dst := s.regval(op.Result)
	src := s.regval(op.Args[0])

	switch src.Kind {
	case ValueInteger:
		v := src.Integer
		if v < 0 {
			v = -v
		}
		dst.setInt(v)

	case ValueReal:
		dst.setReal(math.Abs(src.Real))

	default:
		diag.FatalTrace("invalid value type %s in abs", src.Kind)
	}
}

// ---- Logic and comparison --------------------------------------------------

func (s *state) opNot(op *vir.Op) {
	src := s.regval(op.Args[0])
	var r int64
	if src.Integer == 0 {
		r = 1
	}
	s.regval(op.Result).setInt(r)
}

func (s *state) opAnd(op *vir.Op) {
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])
	if lhs.Kind != ValueInteger {
		diag.FatalTrace("invalid value type %s in and", lhs.Kind)
	}
	s.regval(op.Result).setInt(lhs.Integer & rhs.Integer)
}

func (s *state) opOr(op *vir.Op) {
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])
	if lhs.Kind != ValueInteger {
		diag.FatalTrace("invalid value type %s in or", lhs.Kind)
	}
	s.regval(op.Result).setInt(lhs.Integer | rhs.Integer)
}

func (s *state) opCmp(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])

	var r bool
	if lhs.Kind == ValueReal {
		// IEEE 754 semantics: every relation involving NaN is false
		// except inequality, which is true.
		switch op.Cmp {
		case vir.CmpEq:
			r = lhs.Real == rhs.Real
		case vir.CmpNeq:
			r = lhs.Real != rhs.Real
		case vir.CmpGt:
			r = lhs.Real > rhs.Real
		case vir.CmpGeq:
			r = lhs.Real >= rhs.Real
		case vir.CmpLt:
			r = lhs.Real < rhs.Real
		case vir.CmpLeq:
			r = lhs.Real <= rhs.Real
		default:
			diag.FatalTrace("cannot handle comparison %s", op.Cmp)
		}
	} else {
		c := valueCmp(lhs, rhs)
		switch op.Cmp {
		case vir.CmpEq:
			r = c == 0
		case vir.CmpNeq:
			r = c != 0
		case vir.CmpGt:
			r = c > 0
		case vir.CmpGeq:
			r = c >= 0
		case vir.CmpLt:
			r = c < 0
		case vir.CmpLeq:
			r = c <= 0
		default:
			diag.FatalTrace("cannot handle comparison %s", op.Cmp)
		}
	}

	var i int64
	if r {
		i = 1
	}
	dst.setInt(i)
}

func (s *state) opSelect(op *vir.Op) {
	test := s.regval(op.Args[0])
	if test.Kind != ValueInteger {
		diag.FatalTrace("invalid value type %s in select", test.Kind)
	}
	if test.Integer != 0 {
		*s.regval(op.Result) = *s.regval(op.Args[1])
	} else {
		*s.regval(op.Result) = *s.regval(op.Args[2])
	}
}

// ---- Conversion ------------------------------------------------------------

func (s *state) opCast(op *vir.Op) {
	dst := s.regval(op.Result)
	src := s.regval(op.Args[0])

	switch op.Type.Kind {
	case vir.TypeInt, vir.TypeOffset:
		switch src.Kind {
		case ValueInteger:
			dst.setInt(src.Integer)
		case ValueReal:
			dst.setInt(int64(src.Real))
		default:
			diag.FatalTrace("invalid value type %s in cast", src.Kind)
		}

	case vir.TypeReal:
		switch src.Kind {
		case ValueInteger:
			dst.setReal(float64(src.Integer))
		case ValueReal:
			dst.setReal(src.Real)
		default:
			diag.FatalTrace("invalid value type %s in cast", src.Kind)
		}

	default:
		diag.FatalTrace("cannot handle destination type %s in cast", op.Type.Kind)
	}
}

// ---- Memory ----------------------------------------------------------------

func (s *state) opStore(op *vir.Op) {
	src := s.regval(op.Args[0])
	if v := s.varval(op.Address); v != nil {
		*v = *src
	}
}

func (s *state) opLoad(op *vir.Op) {
	dst := s.regval(op.Result)
	if v := s.varval(op.Address); v != nil {
		*dst = *v
	}
}

func (s *state) opStoreIndirect(op *vir.Op) {
	src := s.regval(op.Args[0])
	dst := s.regval(op.Args[1])
	if dst.Kind != ValuePointer {
		diag.FatalTrace("store indirect through %s value", dst.Kind)
	}
	*dst.Pointer.At(0) = *src
}

func (s *state) opLoadIndirect(op *vir.Op) {
	dst := s.regval(op.Result)
	src := s.regval(op.Args[0])
	if src.Kind != ValuePointer {
		diag.FatalTrace("load indirect through %s value", src.Kind)
	}
	*dst = *src.Pointer.At(0)
}

func (s *state) opIndex(op *vir.Op) {
	v := s.varval(op.Address)
	if v == nil {
		return
	}
	if v.Kind != ValueCarray {
		diag.FatalTrace("index of %s variable", v.Kind)
	}
	s.regval(op.Result).setPointer(v.Pointer)
}

func (s *state) opAlloca(op *vir.Op) {
	length := int64(1)
	if len(op.Args) > 0 {
		arg := s.regval(op.Args[0])
		if arg.Kind != ValueInteger {
			diag.FatalTrace("alloca with %s length", arg.Kind)
		}
		length = arg.Integer
	}

	p, ok := s.allocValues(int(length))
	if !ok {
		return
	}
	s.regval(op.Result).setPointer(p)
}

func (s *state) opCopy(op *vir.Op) {
	dst := s.regval(op.Args[0])
	src := s.regval(op.Args[1])
	count := s.regval(op.Args[2])

	if dst.Kind != ValuePointer || src.Kind != ValuePointer {
		diag.FatalTrace("copy between %s and %s values", dst.Kind, src.Kind)
	}
	for i := int64(0); i < count.Integer; i++ {
		*dst.Pointer.At(i) = *src.Pointer.At(i)
	}
}

func (s *state) opMemcmp(op *vir.Op) {
	dst := s.regval(op.Result)
	lhs := s.regval(op.Args[0])
	rhs := s.regval(op.Args[1])
	length := s.regval(op.Args[2])

	if lhs.Kind != ValuePointer || rhs.Kind != ValuePointer {
		diag.FatalTrace("memcmp between %s and %s values", lhs.Kind, rhs.Kind)
	}

	dst.setInt(1)
	for i := int64(0); i < length.Integer; i++ {
		if valueCmp(lhs.Pointer.At(i), rhs.Pointer.At(i)) != 0 {
			dst.setInt(0)
			return
		}
	}
}

// ---- Arrays ----------------------------------------------------------------

func (s *state) opWrap(op *vir.Op) {
	dst := s.regval(op.Result)
	src := s.regval(op.Args[0])

	if src.Kind != ValuePointer {
		diag.FatalTrace("wrap of %s value", src.Kind)
	}

	ua, ok := s.allocUArray()
	if !ok {
		return
	}
	ua.Data = src.Pointer

	ndims := (len(op.Args) - 1) / 3
	if ndims > MaxDims {
		s.failed = true
		s.warnf(s.fcall, "%d dimensional array prevents constant folding", ndims)
		return
	}

	ua.NDims = ndims
	for i := 0; i < ndims; i++ {
		ua.Dims[i] = Dim{
			Left:  s.regval(op.Args[i*3+1]).Integer,
			Right: s.regval(op.Args[i*3+2]).Integer,
			Dir:   vir.RangeKind(s.regval(op.Args[i*3+3]).Integer),
		}
	}

	dst.Kind = ValueUarray
	dst.Array = ua
}

func (s *state) opUnwrap(op *vir.Op) {
	src := s.regval(op.Args[0])
	if src.Kind != ValueUarray {
		diag.FatalTrace("unwrap of %s value", src.Kind)
	}
	s.regval(op.Result).setPointer(src.Array.Data)
}

func (s *state) opUarrayLen(op *vir.Op) {
	src := s.regval(op.Args[0])
	if src.Kind != ValueUarray {
		diag.FatalTrace("uarray len of %s value", src.Kind)
	}
	s.regval(op.Result).setInt(src.Array.Dims[op.Dim].Length())
}

func (s *state) opUarrayLeft(op *vir.Op) {
	src := s.regval(op.Args[0])
	if src.Kind != ValueUarray {
		diag.FatalTrace("uarray left of %s value", src.Kind)
	}
	s.regval(op.Result).setInt(src.Array.Dims[op.Dim].Left)
}

func (s *state) opUarrayRight(op *vir.Op) {
	src := s.regval(op.Args[0])
	if src.Kind != ValueUarray {
		diag.FatalTrace("uarray right of %s value", src.Kind)
	}
	s.regval(op.Result).setInt(src.Array.Dims[op.Dim].Right)
}

func (s *state) opUarrayDir(op *vir.Op) {
	src := s.regval(op.Args[0])
	if src.Kind != ValueUarray {
		diag.FatalTrace("uarray dir of %s value", src.Kind)
	}
	s.regval(op.Result).setInt(int64(src.Array.Dims[op.Dim].Dir))
}

// ---- Checks ----------------------------------------------------------------

// boundsError reports a violated check at the opcode's source anchor and
// links it back to the call being folded.
func (s *state) boundsError(op *vir.Op, v, low, high int64) {
	switch op.Subkind {
	case vir.BoundsArrayTo:
		diag.ErrorAt(op.Loc, "array index %d outside bounds %d to %d",
			v, low, high)

	case vir.BoundsArrayDownto:
		diag.ErrorAt(op.Loc, "array index %d outside bounds %d downto %d",
			v, high, low)

	default:
		diag.FatalTrace("unhandled bounds kind %d", op.Subkind)
	}

	s.ev.errors++
	diag.NoteAt(s.fcall.Loc(), "while evaluating call to %s", s.fcall.Ident())
}

func (s *state) opBounds(op *vir.Op) {
	reg := s.regval(op.Args[0])

	switch reg.Kind {
	case ValueInteger:
		low, high := op.Type.Low, op.Type.High
		if low > high {
			break
		}
		if reg.Integer < low || reg.Integer > high {
			if s.flags&FlagBounds != 0 {
				s.boundsError(op, reg.Integer, low, high)
			}
			s.failed = true
		}

	case ValueReal:
		break

	default:
		diag.FatalTrace("invalid value type %s in bounds", reg.Kind)
	}
}

func (s *state) opDynamicBounds(op *vir.Op) {
	reg := s.regval(op.Args[0])
	low := s.regval(op.Args[1])
	high := s.regval(op.Args[2])

	switch reg.Kind {
	case ValueInteger:
		if low.Integer > high.Integer {
			break
		}
		if reg.Integer < low.Integer || reg.Integer > high.Integer {
			if s.flags&FlagBounds != 0 {
				s.boundsError(op, reg.Integer, low.Integer, high.Integer)
			}
			s.failed = true
		}

	case ValueReal:
		break

	default:
		diag.FatalTrace("invalid value type %s in dynamic bounds", reg.Kind)
	}
}

func (s *state) opIndexCheck(op *vir.Op) {
	low := s.regval(op.Args[0])
	high := s.regval(op.Args[1])

	var min, max int64
	if len(op.Args) == 2 {
		min, max = op.Type.Low, op.Type.High
	} else {
		min = s.regval(op.Args[2]).Integer
		max = s.regval(op.Args[3]).Integer
	}

	// TODO: report the violating range under FlagBounds like opBounds does
	if high.Integer < low.Integer {
		return
	} else if low.Integer < min {
		s.failed = true
	} else if high.Integer > max {
		s.failed = true
	}
}

// ---- Assertion and report --------------------------------------------------

// message formats and emits an assertion or report message at the severity
// carried in the VIR.
func (s *state) message(text, length, severity *Value, loc diag.Loc, prefix string) {
	if text.Kind != ValuePointer {
		diag.FatalTrace("message text is a %s value", text.Kind)
	}

	msg := "Assertion violation"
	if length.Integer > 0 {
		chars := make([]byte, length.Integer)
		for i := int64(0); i < length.Integer; i++ {
			chars[i] = byte(text.Pointer.At(i).Integer)
		}
		msg = string(chars)
	}

	sev := diag.Severity(severity.Integer)
	switch sev {
	case diag.SeverityNote:
		diag.NoteAt(loc, "%s %s: %s", prefix, sev, msg)
	case diag.SeverityWarning:
		diag.WarnAt(loc, "%s %s: %s", prefix, sev, msg)
	case diag.SeverityError, diag.SeverityFailure:
		diag.ErrorAt(loc, "%s %s: %s", prefix, sev, msg)
	default:
		diag.FatalAt(loc, "%s %s: %s", prefix, sev, msg)
	}
}

func (s *state) opReport(op *vir.Op) {
	severity := s.regval(op.Args[0])
	text := s.regval(op.Args[1])
	length := s.regval(op.Args[2])

	if s.flags&FlagReport != 0 {
		s.message(text, length, severity, op.Loc, "Report")
	} else {
		// Cannot fold as it would change runtime behaviour
		s.failed = true
	}
}

func (s *state) opAssert(op *vir.Op) {
	test := s.regval(op.Args[0])
	severity := s.regval(op.Args[1])
	text := s.regval(op.Args[2])
	length := s.regval(op.Args[3])

	if test.Integer != 0 {
		return
	}

	if s.flags&FlagReport == 0 {
		// The message would be lost; leave it for runtime
		s.failed = true
		return
	}

	s.message(text, length, severity, op.Loc, "Assertion")
	s.failed = diag.Severity(severity.Integer) >= diag.SeverityError
}

// ---- Image -----------------------------------------------------------------

func (s *state) opImage(op *vir.Op) {
	object := s.regval(op.Args[0])
	where := op.Bookmark
	if where == nil {
		s.failed = true
		return
	}
	typ := where.Type().BaseRecur()

	var str string
	switch typ.Kind() {
	case types.KindInteger:
		str = strconv.FormatInt(object.Integer, 10)

	case types.KindEnum:
		lit, ok := typ.EnumLiteral(int(object.Integer))
		if !ok {
			diag.FatalTrace("enumeration position %d out of range in image",
				object.Integer)
		}
		str = lit

	case types.KindReal:
		str = strconv.FormatFloat(object.Real, 'g', 18, 64)

	case types.KindPhysical:
		unit, ok := typ.UnitName(0)
		if !ok {
			diag.FatalTrace("physical type %s has no primary unit", typ.Ident())
		}
		str = strconv.FormatInt(object.Integer, 10) + " " + unit

	default:
		diag.ErrorAt(where.Loc(), "cannot use 'IMAGE with this type")
		s.failed = true
		return
	}

	ua, ok := s.allocUArray()
	if !ok {
		return
	}
	data, ok := s.allocValues(len(str))
	if !ok {
		return
	}

	ua.Data = data
	ua.NDims = 1
	ua.Dims[0] = Dim{Left: 1, Right: int64(len(str)), Dir: vir.DirTo}

	for i := 0; i < len(str); i++ {
		data.At(int64(i)).setInt(int64(str[i]))
	}

	dst := s.regval(op.Result)
	dst.Kind = ValueUarray
	dst.Array = ua
}

// ---- Calls -----------------------------------------------------------------

func (s *state) opFcall(op *vir.Op) {
	saved := s.reg.Save()

	unit := s.reg.Find(op.Func)
	if unit == nil {
		unit = s.ev.resolveUnit(op.Func, s)
	}

	params := make([]Value, len(op.Args))
	for i, a := range op.Args {
		params[i] = *s.regval(a)
	}

	if unit == nil {
		s.warnf(s.fcall, "function call to %s prevents constant folding", op.Func)
		s.failed = true
		s.reg.Restore(saved)
		return
	}

	s.reg.Select(unit)

	sub := &state{
		ev:     s.ev,
		result: vir.RegInvalid,
		fcall:  s.fcall,
		flags:  s.flags,
		heap:   s.heap,
		reg:    s.reg,
	}
	sub.ctx = sub.newContext()
	copy(sub.ctx.regs, params)

	if !sub.failed {
		sub.interp()
	}
	s.reg.Restore(saved)

	if sub.failed {
		s.failed = true
		return
	}

	if sub.result == vir.RegInvalid {
		diag.FatalTrace("no result from call to %s", op.Func)
	}
	ret := sub.ctx.regs[sub.result]
	*s.regval(op.Result) = ret

	if s.flags&FlagVerbose != 0 {
		if ret.Kind == ValueInteger {
			diag.Notef("%s (in %s) returned %d", op.Func, s.fcall.Ident(),
				ret.Integer)
		} else {
			diag.Notef("%s (in %s) returned %f", op.Func, s.fcall.Ident(),
				ret.Real)
		}
	}
}

func (s *state) opNestedFcall(op *vir.Op) {
	// Calls into nested units carry a lexical chain the folder does not
	// model yet; give up on the whole evaluation.
	s.failed = true
}

func (s *state) opUndefined(op *vir.Op) {
	s.warnf(s.fcall, "reference to object without defined value in this "+
		"phase prevents constant folding")
	s.failed = true
}

// ---- Terminators -----------------------------------------------------------

func (s *state) opReturn(op *vir.Op) {
	if len(op.Args) > 0 {
		s.result = op.Args[0]
	}
	s.returned = true
}

func (s *state) opJump(op *vir.Op) {
	s.branch = op.Targets[0]
}

func (s *state) opCond(op *vir.Op) {
	test := s.regval(op.Args[0])
	if test.Integer != 0 {
		s.branch = op.Targets[0]
	} else {
		s.branch = op.Targets[1]
	}
}

func (s *state) opCase(op *vir.Op) {
	test := s.regval(op.Args[0])
	target := op.Targets[0]

	for i := 1; i < len(op.Args); i++ {
		if valueCmp(test, s.regval(op.Args[i])) == 0 {
			target = op.Targets[i]
			break
		}
	}

	s.branch = target
}
