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
	"fmt"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/vir"
)

// MaxDims is the most array dimensions a folded value may carry.
const MaxDims = 4

// ValueKind is the discriminant of the tagged value union.
type ValueKind uint8

const (
	// ValueInvalid is the zero value of a fresh register or a variable of
	// unsupported type.
	ValueInvalid ValueKind = iota
	ValueReal
	ValueInteger
	ValuePointer
	ValueUarray
	ValueCarray
)

func (k ValueKind) String() string {
	switch k {
	case ValueInvalid:
		return "invalid"
	case ValueReal:
		return "real"
	case ValueInteger:
		return "integer"
	case ValuePointer:
		return "pointer"
	case ValueUarray:
		return "uarray"
	case ValueCarray:
		return "carray"
	default:
		return fmt.Sprintf("value(%d)", int(k))
	}
}

// Pointer addresses a run of values in the evaluation arena.  The addr
// field is the byte offset of the first element, giving pointers a total
// order without exposing the backing store.
type Pointer struct {
	slots []Value
	addr  int
}

// IsNil reports whether the pointer addresses no storage.
func (p Pointer) IsNil() bool { return p.slots == nil }

// At returns the i'th value behind the pointer.
func (p Pointer) At(i int64) *Value { return &p.slots[i] }

// Add offsets the pointer by n elements.
func (p Pointer) Add(n int64) Pointer {
	return Pointer{slots: p.slots[n:], addr: p.addr + int(n)*valueBytes}
}

// Dim is the bounds of one unconstrained-array dimension.
type Dim struct {
	Left  int64
	Right int64
	Dir   vir.RangeKind
}

// Length returns the element count of the dimension; a null range has
// length zero.
func (d Dim) Length() int64 {
	var n int64
	if d.Dir == vir.DirTo {
		n = d.Right - d.Left + 1
	} else {
		n = d.Left - d.Right + 1
	}
	if n < 0 {
		return 0
	}
	return n
}

// UArray is an unconstrained-array handle: a data pointer plus inline
// dimension metadata.
type UArray struct {
	Dims  [MaxDims]Dim
	NDims int
	Data  Pointer
}

// Value is one tagged scalar, pointer, or array handle.  Exactly one
// payload field is meaningful, selected by Kind.
type Value struct {
	Kind    ValueKind
	Integer int64
	Real    float64
	Pointer Pointer // also the storage of a carray variable
	Array   *UArray
}

// setInt overwrites the value with an integer.
func (v *Value) setInt(i int64) {
	v.Kind = ValueInteger
	v.Integer = i
}

// setReal overwrites the value with a real.
func (v *Value) setReal(r float64) {
	v.Kind = ValueReal
	v.Real = r
}

// setPointer overwrites the value with a pointer.
func (v *Value) setPointer(p Pointer) {
	v.Kind = ValuePointer
	v.Pointer = p
}

// valueCmp totally orders two values of the same kind, returning a
// negative, zero, or positive result.  Reals are ordered by the sign of
// their difference; NaN operands compare equal here, so relational opcodes
// handle reals separately with IEEE semantics.
func valueCmp(lhs, rhs *Value) int {
	if lhs.Kind != rhs.Kind {
		diag.FatalTrace("compare of %s value with %s value", lhs.Kind, rhs.Kind)
	}
	switch lhs.Kind {
	case ValueInteger:
		switch {
		case lhs.Integer < rhs.Integer:
			return -1
		case lhs.Integer > rhs.Integer:
			return 1
		default:
			return 0
		}

	case ValueReal:
		diff := lhs.Real - rhs.Real
		switch {
		case diff < 0:
			return -1
		case diff > 0:
			return 1
		default:
			return 0
		}

	case ValuePointer:
		return lhs.Pointer.addr - rhs.Pointer.addr

	default:
		diag.FatalTrace("invalid value type %s in comparison", lhs.Kind)
		return 0
	}
}
