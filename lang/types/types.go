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

// Package types models the source-language type system as seen by the
// middle end.  Only the properties the constant folder and lowering pass
// interrogate are represented: scalar-ness, the base type chain, enumeration
// literals, and physical units.
package types

import "fmt"

// Kind categorizes a type.
type Kind int

const (
	KindInteger Kind = iota
	KindReal
	KindEnum
	KindPhysical
	KindArray
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindEnum:
		return "enum"
	case KindPhysical:
		return "physical"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Type describes a declared type or subtype.  Subtypes link to their parent
// through base; BaseRecur follows the chain to the root declaration.
type Type struct {
	kind  Kind
	ident string
	base  *Type
	lits  []string // enumeration literals, in position order
	units []string // physical unit names, primary unit first
	elem  *Type    // array element type
}

// NewInteger returns a new integer type.
func NewInteger(ident string) *Type {
	return &Type{kind: KindInteger, ident: ident}
}

// NewReal returns a new floating-point type.
func NewReal(ident string) *Type {
	return &Type{kind: KindReal, ident: ident}
}

// NewEnum returns a new enumeration type with the given literals in
// position order.
func NewEnum(ident string, lits ...string) *Type {
	return &Type{kind: KindEnum, ident: ident, lits: lits}
}

// NewPhysical returns a new physical type; the first unit is the primary
// unit used by textual representations.
func NewPhysical(ident string, units ...string) *Type {
	return &Type{kind: KindPhysical, ident: ident, units: units}
}

// NewArray returns a new array type over elem.  Arrays are never scalar.
func NewArray(ident string, elem *Type) *Type {
	return &Type{kind: KindArray, ident: ident, elem: elem}
}

// NewSubtype returns a subtype of base sharing its kind and metadata.
func NewSubtype(ident string, base *Type) *Type {
	return &Type{kind: base.kind, ident: ident, base: base}
}

// Kind returns the type's category.
func (t *Type) Kind() Kind { return t.kind }

// Ident returns the declared name of the type.
func (t *Type) Ident() string { return t.ident }

// Base returns the immediate parent type, or nil for a root declaration.
func (t *Type) Base() *Type { return t.base }

// Elem returns the element type of an array type.
func (t *Type) Elem() *Type { return t.elem }

// BaseRecur follows the subtype chain to the root type declaration.
func (t *Type) BaseRecur() *Type {
	for t.base != nil {
		t = t.base
	}
	return t
}

// IsScalar reports whether values of the type are single scalar objects.
func (t *Type) IsScalar() bool {
	switch t.kind {
	case KindInteger, KindReal, KindEnum, KindPhysical:
		return true
	default:
		return false
	}
}

// IsEnum reports whether the type is an enumeration.
func (t *Type) IsEnum() bool { return t.kind == KindEnum }

// NumLiterals returns the number of enumeration literals.
func (t *Type) NumLiterals() int { return len(t.BaseRecur().lits) }

// EnumLiteral returns the name of the literal at position pos.
func (t *Type) EnumLiteral(pos int) (string, bool) {
	lits := t.BaseRecur().lits
	if pos < 0 || pos >= len(lits) {
		return "", false
	}
	return lits[pos], true
}

// UnitName returns the name of the physical unit at index i; index 0 is the
// primary unit.
func (t *Type) UnitName(i int) (string, bool) {
	units := t.BaseRecur().units
	if i < 0 || i >= len(units) {
		return "", false
	}
	return units[i], true
}
