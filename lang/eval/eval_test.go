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
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/lower"
	"github.com/veridian-hdl/veridian/lang/tree"
	"github.com/veridian-hdl/veridian/lang/types"
	"github.com/veridian-hdl/veridian/lang/vir"
)

var (
	testLoc  = diag.Loc{File: "test.vhd", Line: 5}
	intType  = types.NewInteger("INTEGER")
	realType = types.NewReal("REAL")
	enumType = types.NewEnum("COLOR", "RED", "GREEN", "BLUE")
	physType = types.NewPhysical("TIME", "FS", "PS", "NS")
	arrType  = types.NewArray("INT_VECTOR", types.NewInteger("INTEGER"))
)

// ---- Builders --------------------------------------------------------------

// newEvaluator wires a registry holding the given units to a fresh folder.
func newEvaluator(units ...*vir.Unit) *Evaluator {
	reg := vir.NewRegistry()
	for _, u := range units {
		reg.Register(u)
	}
	return &Evaluator{Registry: reg, Lower: &lower.Thunks{Registry: reg}}
}

func intLit(v int64) *tree.Node {
	return tree.NewIntLiteral(testLoc, intType, v)
}

func realLit(v float64) *tree.Node {
	return tree.NewRealLiteral(testLoc, realType, v)
}

// call builds a call to a pure function declaration named name.
func call(name string, typ *types.Type, args ...*tree.Node) *tree.Node {
	decl := tree.NewFuncDecl(name, typ, 0)
	return tree.NewFuncCall(testLoc, decl, typ, args...)
}

// binaryUnit lowers to a single two-operand operation over its parameters.
func binaryUnit(name string, op vir.Opcode) *vir.Unit {
	b := vir.NewBuilder(name, vir.UnitFunction)
	p0 := b.Param()
	p1 := b.Param()
	b.Return(b.Binary(op, p0, p1))
	return b.Finish()
}

// captureDiag redirects diagnostics into a buffer for the test's lifetime.
func captureDiag(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := diag.SetOutput(&buf)
	t.Cleanup(func() { diag.SetOutput(prev) })
	return &buf
}

// wantIntLit fails unless got is an integer literal holding v.
func wantIntLit(t *testing.T, got *tree.Node, v int64) {
	t.Helper()
	if got.Kind() != tree.KindLiteral || got.LitKind() != tree.LitInteger {
		t.Fatalf("got %v node, want integer literal", got.Kind())
	}
	if got.Ival() != v {
		t.Fatalf("literal holds %d, want %d", got.Ival(), v)
	}
}

// ---- Arithmetic folding ----------------------------------------------------

func TestFoldAddCall(t *testing.T) {
	ev := newEvaluator(binaryUnit("add", vir.OpAdd))

	fcall := call("add", intType, intLit(2), intLit(3))
	got := ev.Eval(fcall, FlagFCall|FlagFolding)

	wantIntLit(t, got, 5)
	if got.Type() != intType {
		t.Errorf("literal type %v, want the call's type", got.Type())
	}
	if got.Loc() != testLoc {
		t.Errorf("literal loc %v, want the call's loc", got.Loc())
	}
}

func TestFoldDivTruncatesTowardZero(t *testing.T) {
	ev := newEvaluator(binaryUnit("div", vir.OpDiv))

	cases := []struct {
		a, b, want int64
	}{
		{7, 2, 3},
		{7, -2, -3},
		{-7, 2, -3},
		{-7, -2, 3},
	}
	for _, tc := range cases {
		got := ev.Eval(call("div", intType, intLit(tc.a), intLit(tc.b)),
			FlagFCall)
		wantIntLit(t, got, tc.want)
	}
}

func TestFoldModRem(t *testing.T) {
	ev := newEvaluator(binaryUnit("mod", vir.OpMod), binaryUnit("rem", vir.OpRem))

	// rem keeps the dividend's sign; mod is the absolute remainder.
	got := ev.Eval(call("rem", intType, intLit(-7), intLit(2)), FlagFCall)
	wantIntLit(t, got, -1)

	got = ev.Eval(call("mod", intType, intLit(-7), intLit(2)), FlagFCall)
	wantIntLit(t, got, 1)
}

func TestDivisionByZeroIsFatal(t *testing.T) {
	captureDiag(t)
	ev := newEvaluator(binaryUnit("div", vir.OpDiv))

	defer func() {
		r := recover()
		fe, ok := r.(*diag.FatalError)
		if !ok {
			t.Fatalf("recovered %v, want *diag.FatalError", r)
		}
		if fe.Msg != "division by zero" {
			t.Errorf("fatal message %q", fe.Msg)
		}
		if fe.Loc != testLoc {
			t.Errorf("fatal anchored at %v, want the call site", fe.Loc)
		}
	}()

	ev.Eval(call("div", intType, intLit(7), intLit(0)), FlagFCall)
	t.Fatal("division by zero did not halt evaluation")
}

func TestFoldRealExp(t *testing.T) {
	ev := newEvaluator(binaryUnit("pow", vir.OpExp))

	got := ev.Eval(call("pow", realType, realLit(2), realLit(10)), FlagFCall)
	if got.Kind() != tree.KindLiteral || got.LitKind() != tree.LitReal {
		t.Fatalf("got %v node, want real literal", got.Kind())
	}
	if got.Rval() != 1024.0 {
		t.Errorf("literal holds %f, want 1024", got.Rval())
	}
}

func TestFoldUnaryOps(t *testing.T) {
	abs := vir.NewBuilder("abs1", vir.UnitFunction)
	p := abs.Param()
	abs.Return(abs.Unary(vir.OpAbs, p))

	neg := vir.NewBuilder("neg1", vir.UnitFunction)
	p = neg.Param()
	neg.Return(neg.Unary(vir.OpNeg, p))

	ev := newEvaluator(abs.Finish(), neg.Finish())

	wantIntLit(t, ev.Eval(call("abs1", intType, intLit(-5)), FlagFCall), 5)
	wantIntLit(t, ev.Eval(call("neg1", intType, intLit(-5)), FlagFCall), 5)
}

func TestFoldLogicAndCast(t *testing.T) {
	b := vir.NewBuilder("logic", vir.UnitFunction)
	notv := b.Unary(vir.OpNot, b.Const(0))                     // 1
	andv := b.Binary(vir.OpAnd, notv, b.Const(1))              // 1
	orv := b.Binary(vir.OpOr, andv, b.Const(2))                // 3
	casted := b.Cast(vir.IntType(-100, 100), b.ConstReal(3.9)) // 3
	b.Return(b.Binary(vir.OpAdd, orv, casted))                 // 6

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("logic", intType), FlagFCall), 6)
}

func TestFoldSelect(t *testing.T) {
	b := vir.NewBuilder("pick", vir.UnitFunction)
	test := b.Cmp(vir.CmpGt, b.Const(4), b.Const(3))
	b.Return(b.Select(test, b.Const(10), b.Const(20)))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("pick", intType), FlagFCall), 10)
}

func TestFoldEnumResult(t *testing.T) {
	b := vir.NewBuilder("second", vir.UnitFunction)
	b.Return(b.Const(1))

	ev := newEvaluator(b.Finish())
	got := ev.Eval(call("second", enumType), FlagFCall)

	if got.Kind() != tree.KindRef || got.Ref().Kind() != tree.KindEnumLit {
		t.Fatalf("got %v node, want enum literal reference", got.Kind())
	}
	if got.Ref().Ident() != "GREEN" {
		t.Errorf("enum literal %q, want GREEN", got.Ref().Ident())
	}
}

// ---- Control flow ----------------------------------------------------------

func TestFoldCondBranches(t *testing.T) {
	b := vir.NewBuilder("signum", vir.UnitFunction)
	p := b.Param()
	bNeg := b.NewBlock()
	bPos := b.NewBlock()

	test := b.Cmp(vir.CmpLt, p, b.Const(0))
	b.Cond(test, bNeg, bPos)

	b.SetBlock(bNeg)
	b.Return(b.Const(-1))

	b.SetBlock(bPos)
	b.Return(b.Const(1))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("signum", intType, intLit(-9)), FlagFCall), -1)
	wantIntLit(t, ev.Eval(call("signum", intType, intLit(9)), FlagFCall), 1)
}

func TestFoldCaseDispatch(t *testing.T) {
	b := vir.NewBuilder("decode", vir.UnitFunction)
	p := b.Param()
	bDef := b.NewBlock()
	bOne := b.NewBlock()
	bTwo := b.NewBlock()

	k1 := b.Const(1)
	k2 := b.Const(2)
	b.Case(p, bDef, []vir.Reg{k1, k2}, []int{bOne, bTwo})

	b.SetBlock(bDef)
	b.Return(b.Const(0))
	b.SetBlock(bOne)
	b.Return(b.Const(100))
	b.SetBlock(bTwo)
	b.Return(b.Const(200))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("decode", intType, intLit(1)), FlagFCall), 100)
	wantIntLit(t, ev.Eval(call("decode", intType, intLit(2)), FlagFCall), 200)
	wantIntLit(t, ev.Eval(call("decode", intType, intLit(7)), FlagFCall), 0)
}

func TestFoldJumpChain(t *testing.T) {
	b := vir.NewBuilder("hop", vir.UnitFunction)
	b1 := b.NewBlock()
	b2 := b.NewBlock()

	b.Jump(b1)
	b.SetBlock(b1)
	b.Jump(b2)
	b.SetBlock(b2)
	b.Return(b.Const(77))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("hop", intType), FlagFCall), 77)
}

// ---- Memory and arrays -----------------------------------------------------

func TestFoldCarrayVariable(t *testing.T) {
	b := vir.NewBuilder("sum3", vir.UnitFunction)
	v := b.AddVar("tmp", vir.CarrayType(3), false)

	base := b.Index(v)
	b.StoreIndirect(b.Const(10), base)
	p1 := b.Binary(vir.OpAdd, base, b.Const(1))
	b.StoreIndirect(b.Const(20), p1)
	p2 := b.Binary(vir.OpAdd, base, b.Const(2))
	b.StoreIndirect(b.Const(30), p2)

	sum := b.Binary(vir.OpAdd, b.LoadIndirect(base), b.LoadIndirect(p1))
	sum = b.Binary(vir.OpAdd, sum, b.LoadIndirect(p2))
	b.Return(sum)

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("sum3", intType), FlagFCall), 60)
}

func TestFoldCopyMemcmp(t *testing.T) {
	b := vir.NewBuilder("memeq", vir.UnitFunction)
	src := b.ConstArray(b.Const(4), b.Const(5))
	dst := b.Alloca(b.Const(2))
	count := b.Const(2)
	b.Copy(dst, src, count)
	b.Return(b.Memcmp(src, dst, count))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("memeq", intType), FlagFCall), 1)
}

func TestFoldWrapUnwrap(t *testing.T) {
	b := vir.NewBuilder("first", vir.UnitFunction)
	data := b.ConstArray(b.Const(7), b.Const(8))
	w := b.Wrap(data, b.Const(1), b.Const(2), b.Const(int64(vir.DirTo)))
	b.Return(b.LoadIndirect(b.Unwrap(w)))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("first", intType), FlagFCall), 7)
}

func TestFoldUarrayMeta(t *testing.T) {
	build := func(name string, op vir.Opcode) *vir.Unit {
		b := vir.NewBuilder(name, vir.UnitFunction)
		data := b.ConstArray(b.Const(0), b.Const(0), b.Const(0))
		w := b.Wrap(data, b.Const(5), b.Const(3), b.Const(int64(vir.DirDownto)))
		b.Return(b.UarrayMeta(op, w, 0))
		return b.Finish()
	}

	ev := newEvaluator(
		build("alen", vir.OpUarrayLen),
		build("aleft", vir.OpUarrayLeft),
		build("aright", vir.OpUarrayRight),
		build("adir", vir.OpUarrayDir),
	)

	wantIntLit(t, ev.Eval(call("alen", intType), FlagFCall), 3)
	wantIntLit(t, ev.Eval(call("aleft", intType), FlagFCall), 5)
	wantIntLit(t, ev.Eval(call("aright", intType), FlagFCall), 3)
	wantIntLit(t, ev.Eval(call("adir", intType), FlagFCall),
		int64(vir.DirDownto))
}

func TestWrapTooManyDims(t *testing.T) {
	buf := captureDiag(t)

	b := vir.NewBuilder("deep", vir.UnitFunction)
	data := b.ConstArray(b.Const(0))
	dims := make([]vir.Reg, 0, (MaxDims+1)*3)
	for i := 0; i < MaxDims+1; i++ {
		dims = append(dims, b.Const(1), b.Const(1), b.Const(int64(vir.DirTo)))
	}
	w := b.Wrap(data, dims...)
	b.Return(b.UarrayMeta(vir.OpUarrayLen, w, 0))

	ev := newEvaluator(b.Finish())
	fcall := call("deep", intType)
	if got := ev.Eval(fcall, FlagFCall|FlagWarn); got != fcall {
		t.Fatal("five dimensional wrap folded")
	}
	if !strings.Contains(buf.String(), "5 dimensional array") {
		t.Errorf("missing warning, got %q", buf.String())
	}
}

// ---- Foldability -----------------------------------------------------------

func TestEvalRejectsNonScalar(t *testing.T) {
	ev := newEvaluator()
	fcall := call("concat", arrType, intLit(1))
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Error("non-scalar call was rewritten")
	}
}

func TestEvalRejectsImpure(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator()

	decl := tree.NewFuncDecl("impure_now", intType, tree.FlagImpure)
	fcall := tree.NewFuncCall(testLoc, decl, intType)

	if got := ev.Eval(fcall, FlagFCall|FlagWarn); got != fcall {
		t.Error("impure call was rewritten")
	}
	_ = buf // impure rejection is silent: the predicate knows the reason
}

func TestEvalRejectsAggregateArgument(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(binaryUnit("add", vir.OpAdd))

	agg := tree.NewAggregate(testLoc, arrType, intLit(1))
	fcall := call("add", intType, agg, intLit(3))

	if got := ev.Eval(fcall, FlagFCall|FlagWarn); got != fcall {
		t.Error("call with aggregate argument was rewritten")
	}
	if !strings.Contains(buf.String(), "prevents constant folding") {
		t.Errorf("missing warning, got %q", buf.String())
	}
}

func TestFoldingRejectsScalarSubCall(t *testing.T) {
	ev := newEvaluator(binaryUnit("add", vir.OpAdd))

	inner := call("add", intType, intLit(1), intLit(2))
	outer := call("add", intType, inner, intLit(3))

	// Under the folding pass a scalar sub-call would have been folded
	// already; its survival proves it cannot be.
	if got := ev.Eval(outer, FlagFCall|FlagFolding); got != outer {
		t.Error("call with unfolded scalar sub-call was rewritten")
	}

	// Outside the folding pass the sub-call is simply interpreted.
	wantIntLit(t, ev.Eval(outer, FlagFCall), 6)
}

func TestNoFCallFlagRejectsSubCall(t *testing.T) {
	ev := newEvaluator(binaryUnit("add", vir.OpAdd))

	inner := call("add", intType, intLit(1), intLit(2))
	outer := call("add", intType, inner, intLit(3))

	if got := ev.Eval(outer, 0); got != outer {
		t.Error("nested call rewritten without the fcall flag")
	}
}

// ---- Bounds ----------------------------------------------------------------

// boundsUnit checks the constant v against [1, 10].
func boundsUnit(v int64, kind vir.BoundsKind) *vir.Unit {
	b := vir.NewBuilder("check", vir.UnitFunction)
	where := tree.NewIntLiteral(diag.Loc{File: "test.vhd", Line: 9}, intType, 0)
	r := b.Const(v)
	b.Bounds(r, vir.IntType(1, 10), kind, where)
	b.Return(r)
	return b.Finish()
}

func TestBoundsViolationReported(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(boundsUnit(11, vir.BoundsArrayTo))

	fcall := call("check", intType)
	if got := ev.Eval(fcall, FlagFCall|FlagBounds); got != fcall {
		t.Fatal("out of bounds call folded")
	}
	if want := "array index 11 outside bounds 1 to 10"; !strings.Contains(buf.String(), want) {
		t.Errorf("missing %q in %q", want, buf.String())
	}
	if !strings.Contains(buf.String(), "while evaluating call to check") {
		t.Errorf("missing call note in %q", buf.String())
	}
	if ev.Errors() != 1 {
		t.Errorf("error count %d, want 1", ev.Errors())
	}
}

func TestBoundsViolationSilentWithoutFlag(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(boundsUnit(11, vir.BoundsArrayTo))

	fcall := call("check", intType)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Fatal("out of bounds call folded")
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
	if ev.Errors() != 0 {
		t.Errorf("error count %d, want 0", ev.Errors())
	}
}

func TestBoundsDowntoWording(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(boundsUnit(0, vir.BoundsArrayDownto))

	ev.Eval(call("check", intType), FlagFCall|FlagBounds)
	if want := "array index 0 outside bounds 10 downto 1"; !strings.Contains(buf.String(), want) {
		t.Errorf("missing %q in %q", want, buf.String())
	}
}

func TestEmptyRangeBoundsVacuous(t *testing.T) {
	b := vir.NewBuilder("nullrange", vir.UnitFunction)
	r := b.Const(42)
	b.Bounds(r, vir.IntType(10, 1), vir.BoundsArrayTo, nil)
	b.Return(r)

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("nullrange", intType), FlagFCall|FlagBounds), 42)
}

func TestDynamicBounds(t *testing.T) {
	buf := captureDiag(t)

	b := vir.NewBuilder("dyn", vir.UnitFunction)
	r := b.Const(11)
	b.DynamicBounds(r, b.Const(1), b.Const(10), nil)
	b.Return(r)

	ev := newEvaluator(b.Finish())
	fcall := call("dyn", intType)
	if got := ev.Eval(fcall, FlagFCall|FlagBounds); got != fcall {
		t.Fatal("out of bounds call folded")
	}
	if !strings.Contains(buf.String(), "outside bounds 1 to 10") {
		t.Errorf("missing bounds error in %q", buf.String())
	}
}

func TestIndexCheck(t *testing.T) {
	b := vir.NewBuilder("slice", vir.UnitFunction)
	b.IndexCheck(b.Const(2), b.Const(12), vir.IntType(1, 10))
	b.Return(b.Const(0))

	ev := newEvaluator(b.Finish())
	fcall := call("slice", intType)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Fatal("call with out of range slice folded")
	}

	// A null sub-range passes whatever the parent bounds are.
	b = vir.NewBuilder("nullslice", vir.UnitFunction)
	b.IndexCheck(b.Const(5), b.Const(4), vir.IntType(1, 2))
	b.Return(b.Const(1))

	ev = newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("nullslice", intType), FlagFCall), 1)
}

// ---- Assertion and report --------------------------------------------------

// assertUnit fails an assertion with the given severity and message.
func assertUnit(sev diag.Severity, msg string) *vir.Unit {
	b := vir.NewBuilder("always_bad", vir.UnitFunction)
	chars := make([]vir.Reg, len(msg))
	for i := 0; i < len(msg); i++ {
		chars[i] = b.Const(int64(msg[i]))
	}
	text := b.ConstArray(chars...)
	b.Assert(b.Const(0), b.Const(int64(sev)), text, b.Const(int64(len(msg))), nil)
	b.Return(b.Const(0))
	return b.Finish()
}

func TestAssertWithoutReportFails(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(assertUnit(diag.SeverityFailure, "nope"))

	fcall := call("always_bad", intType)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Fatal("failing assertion folded")
	}
	if buf.Len() != 0 {
		t.Errorf("message emitted without the report flag: %q", buf.String())
	}
}

func TestAssertWithReportEmits(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(assertUnit(diag.SeverityFailure, "nope"))

	fcall := call("always_bad", intType)
	if got := ev.Eval(fcall, FlagFCall|FlagReport); got != fcall {
		t.Fatal("failing assertion folded")
	}
	if !strings.Contains(buf.String(), "Assertion Failure: nope") {
		t.Errorf("missing assertion message in %q", buf.String())
	}
}

func TestAssertNoteSeverityFoldsUnderReport(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(assertUnit(diag.SeverityNote, "fyi"))

	// A note-severity assertion emits but does not fail the fold.
	got := ev.Eval(call("always_bad", intType), FlagFCall|FlagReport)
	wantIntLit(t, got, 0)
	if !strings.Contains(buf.String(), "Assertion Note: fyi") {
		t.Errorf("missing note in %q", buf.String())
	}
}

func TestPassingAssertIsInvisible(t *testing.T) {
	b := vir.NewBuilder("fine", vir.UnitFunction)
	text := b.ConstArray(b.Const('o'), b.Const('k'))
	b.Assert(b.Const(1), b.Const(int64(diag.SeverityFailure)), text, b.Const(2), nil)
	b.Return(b.Const(9))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("fine", intType), FlagFCall), 9)
}

func TestReportForcesFailureWithoutFlag(t *testing.T) {
	buf := captureDiag(t)

	b := vir.NewBuilder("chatty", vir.UnitFunction)
	text := b.ConstArray(b.Const('h'), b.Const('i'))
	b.Report(b.Const(int64(diag.SeverityNote)), text, b.Const(2), nil)
	b.Return(b.Const(1))
	ev := newEvaluator(b.Finish())

	fcall := call("chatty", intType)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Fatal("report statement folded without the report flag")
	}
	if buf.Len() != 0 {
		t.Errorf("message emitted: %q", buf.String())
	}

	wantIntLit(t, ev.Eval(fcall, FlagFCall|FlagReport), 1)
	if !strings.Contains(buf.String(), "Report Note: hi") {
		t.Errorf("missing report message in %q", buf.String())
	}
}

// ---- Image -----------------------------------------------------------------

// imageUnit returns the length of the image of val anchored at a node of
// type typ.
func imageUnit(name string, val int64, typ *types.Type) *vir.Unit {
	b := vir.NewBuilder(name, vir.UnitFunction)
	where := tree.NewIntLiteral(testLoc, typ, 0)
	img := b.Image(b.Const(val), where)
	b.Return(b.UarrayMeta(vir.OpUarrayLen, img, 0))
	return b.Finish()
}

func TestImageInteger(t *testing.T) {
	ev := newEvaluator(imageUnit("imglen", -42, intType))
	// image(-42) = "-42"
	wantIntLit(t, ev.Eval(call("imglen", intType), FlagFCall), 3)
}

func TestImageEnum(t *testing.T) {
	ev := newEvaluator(imageUnit("imglen", 1, enumType))
	// image(1) = "GREEN"
	wantIntLit(t, ev.Eval(call("imglen", intType), FlagFCall), 5)
}

func TestImagePhysical(t *testing.T) {
	ev := newEvaluator(imageUnit("imglen", 42, physType))
	// image(42) = "42 FS"
	wantIntLit(t, ev.Eval(call("imglen", intType), FlagFCall), 5)
}

func TestImageCharacters(t *testing.T) {
	b := vir.NewBuilder("imgfirst", vir.UnitFunction)
	where := tree.NewIntLiteral(testLoc, intType, 0)
	img := b.Image(b.Const(42), where)
	b.Return(b.LoadIndirect(b.Unwrap(img)))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("imgfirst", intType), FlagFCall), '4')
}

func TestImageUnsupportedType(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator(imageUnit("imglen", 0, arrType))

	fcall := call("imglen", intType)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Fatal("image of array type folded")
	}
	if !strings.Contains(buf.String(), "cannot use 'IMAGE with this type") {
		t.Errorf("missing error in %q", buf.String())
	}
}

// ---- Lexical scope chain ---------------------------------------------------

// contextUnits builds a context unit "pack" initializing one variable to
// init, and a nested function "getx" loading it.
func contextUnits(init int64, extern bool) []*vir.Unit {
	pack := vir.NewBuilder("pack", vir.UnitContext)
	x := pack.AddVar("x", vir.IntType(-100, 100), extern)
	pack.Store(x, pack.Const(init))
	pack.Return(vir.RegInvalid)

	getx := vir.NewBuilder("getx", vir.UnitFunction)
	getx.SetContext("pack", 1)
	getx.Return(getx.Load(vir.VarRef{Depth: 0, Index: 0}))

	return []*vir.Unit{pack.Finish(), getx.Finish()}
}

func TestEnclosingScopeVariable(t *testing.T) {
	ev := newEvaluator(contextUnits(5, false)...)
	wantIntLit(t, ev.Eval(call("getx", intType), FlagFCall), 5)
}

func TestExternVariableFails(t *testing.T) {
	ev := newEvaluator(contextUnits(5, true)...)
	fcall := call("getx", intType)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Error("call reading an extern variable folded")
	}
}

// ---- Failure modes ---------------------------------------------------------

func TestUndefinedForcesFailure(t *testing.T) {
	buf := captureDiag(t)

	b := vir.NewBuilder("undef", vir.UnitFunction)
	b.Return(b.Undefined())
	ev := newEvaluator(b.Finish())

	fcall := call("undef", intType)
	if got := ev.Eval(fcall, FlagFCall|FlagWarn); got != fcall {
		t.Fatal("undefined read folded")
	}
	if !strings.Contains(buf.String(), "without defined value") {
		t.Errorf("missing warning in %q", buf.String())
	}
}

func TestNestedFcallForcesFailure(t *testing.T) {
	b := vir.NewBuilder("outer", vir.UnitFunction)
	b.Return(b.Emit(vir.Op{Op: vir.OpNestedFcall, Result: b.NewReg(),
		Func: "inner"}))
	ev := newEvaluator(b.Finish())

	fcall := call("outer", intType)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Error("nested function call folded")
	}
}

func TestUnresolvedCalleeFails(t *testing.T) {
	buf := captureDiag(t)
	ev := newEvaluator()

	fcall := call("missing", intType)
	if got := ev.Eval(fcall, FlagFCall|FlagWarn); got != fcall {
		t.Fatal("call to unknown unit folded")
	}
	if !strings.Contains(buf.String(), "function call to missing prevents") {
		t.Errorf("missing warning in %q", buf.String())
	}
}

func TestHeapExhaustionFails(t *testing.T) {
	buf := captureDiag(t)

	b := vir.NewBuilder("greedy", vir.UnitFunction)
	p := b.Alloca(b.Const(EvalHeap/valueBytes + 1))
	b.Return(b.LoadIndirect(p))
	ev := newEvaluator(b.Finish())

	fcall := call("greedy", intType)
	if got := ev.Eval(fcall, FlagFCall|FlagWarn); got != fcall {
		t.Fatal("over-budget allocation folded")
	}
	if !strings.Contains(buf.String(), "heap exhaustion") {
		t.Errorf("missing warning in %q", buf.String())
	}
}

func TestHeapSharedAcrossCalls(t *testing.T) {
	// The callee returns a pointer into its own frame; the shared arena
	// keeps it valid in the caller.
	callee := vir.NewBuilder("makearr", vir.UnitFunction)
	callee.Return(callee.ConstArray(callee.Const(31), callee.Const(32)))

	caller := vir.NewBuilder("useit", vir.UnitFunction)
	ptr := caller.Fcall("makearr")
	caller.Return(caller.LoadIndirect(ptr))

	ev := newEvaluator(callee.Finish(), caller.Finish())
	wantIntLit(t, ev.Eval(call("useit", intType), FlagFCall), 31)
}

func TestHeapSaveRestoreIgnored(t *testing.T) {
	b := vir.NewBuilder("hsr", vir.UnitFunction)
	b.Emit(vir.Op{Op: vir.OpHeapSave, Result: vir.RegInvalid})
	b.Emit(vir.Op{Op: vir.OpHeapRestore, Result: vir.RegInvalid})
	b.Return(b.Const(1))

	ev := newEvaluator(b.Finish())
	wantIntLit(t, ev.Eval(call("hsr", intType), FlagFCall), 1)
}

// ---- Fold driver -----------------------------------------------------------

func TestFoldConstantReference(t *testing.T) {
	ev := newEvaluator()

	decl := tree.NewConstDecl("c", intType, intLit(42))
	ref := tree.NewRef(testLoc, decl)

	got := ev.Fold(ref)
	wantIntLit(t, got, 42)
}

func TestFoldUnitDeclReference(t *testing.T) {
	ev := newEvaluator()

	ns := tree.NewUnitDecl("NS", physType, intLit(1000000))
	ref := tree.NewRef(testLoc, ns)

	got := ev.Fold(ref)
	wantIntLit(t, got, 1000000)
}

func TestFoldLeavesOtherRefs(t *testing.T) {
	ev := newEvaluator()

	sig := tree.NewSignalDecl("clk", intType)
	ref := tree.NewRef(testLoc, sig)

	if got := ev.Fold(ref); got != ref {
		t.Error("signal reference was rewritten")
	}
}

func TestFoldRewritesNestedCall(t *testing.T) {
	ev := newEvaluator(binaryUnit("add", vir.OpAdd))

	fcall := call("add", intType, intLit(2), intLit(3))
	root := tree.NewAggregate(testLoc, arrType, fcall, intLit(9))

	got := ev.Fold(root)
	if got != root {
		t.Fatal("aggregate root replaced")
	}
	wantIntLit(t, root.Param(0), 5)
	wantIntLit(t, root.Param(1), 9)
}

func TestFoldIdempotent(t *testing.T) {
	ev := newEvaluator(binaryUnit("add", vir.OpAdd))

	root := tree.NewAggregate(testLoc, arrType,
		call("add", intType, intLit(2), intLit(3)))

	once := ev.Fold(root)
	first := once.Param(0)
	twice := ev.Fold(once)

	if twice != once {
		t.Error("second fold replaced the root")
	}
	if twice.Param(0) != first {
		t.Error("second fold rewrote an already folded literal")
	}
}

func TestFailedEvalLeavesTreeUntouched(t *testing.T) {
	ev := newEvaluator()

	arg := intLit(3)
	fcall := call("missing", intType, arg)
	if got := ev.Eval(fcall, FlagFCall); got != fcall {
		t.Fatal("unexpected rewrite")
	}
	if fcall.Param(0) != arg || arg.Ival() != 3 {
		t.Error("failed evaluation mutated the tree")
	}
}

// ---- Verbose tracing -------------------------------------------------------

func TestVerboseEnvTracesFold(t *testing.T) {
	buf := captureDiag(t)

	os.Setenv("NVC_EVAL_VERBOSE", "1")
	defer os.Unsetenv("NVC_EVAL_VERBOSE")

	ev := newEvaluator(binaryUnit("add", vir.OpAdd))
	got := ev.Eval(call("add", intType, intLit(2), intLit(3)), FlagFCall)

	wantIntLit(t, got, 5)
	out := buf.String()
	if !strings.Contains(out, "evaluate thunk for add") {
		t.Errorf("missing thunk note in %q", out)
	}
	if !strings.Contains(out, "add returned 5") {
		t.Errorf("missing result note in %q", out)
	}
}
