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

package tree

import (
	"encoding/gob"
	"io"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/types"
)

// The on-disk form mirrors Node with exported fields.  References are
// flattened to the identifier of their target declaration; a library unit
// is re-linked against the analysed design when it is loaded.

type extType struct {
	Kind  types.Kind
	Ident string
	Lits  []string
	Units []string
}

type extNode struct {
	Kind     Kind
	Ident    string
	Loc      diag.Loc
	Flags    Flags
	LitKind  LiteralKind
	Ival     int64
	Rval     float64
	Type     *extType
	RefIdent string
	RefKind  Kind
	RefPos   int64
	Value    *extNode
	Params   []*extNode
}

func packType(t *types.Type) *extType {
	if t == nil {
		return nil
	}
	base := t.BaseRecur()
	ext := &extType{Kind: base.Kind(), Ident: base.Ident()}
	for i := 0; i < base.NumLiterals(); i++ {
		lit, _ := base.EnumLiteral(i)
		ext.Lits = append(ext.Lits, lit)
	}
	for i := 0; ; i++ {
		unit, ok := base.UnitName(i)
		if !ok {
			break
		}
		ext.Units = append(ext.Units, unit)
	}
	return ext
}

func unpackType(ext *extType) *types.Type {
	if ext == nil {
		return nil
	}
	switch ext.Kind {
	case types.KindReal:
		return types.NewReal(ext.Ident)
	case types.KindEnum:
		return types.NewEnum(ext.Ident, ext.Lits...)
	case types.KindPhysical:
		return types.NewPhysical(ext.Ident, ext.Units...)
	case types.KindArray:
		return types.NewArray(ext.Ident, nil)
	default:
		return types.NewInteger(ext.Ident)
	}
}

func pack(n *Node) *extNode {
	if n == nil {
		return nil
	}
	ext := &extNode{
		Kind:    n.kind,
		Ident:   n.ident,
		Loc:     n.loc,
		Flags:   n.flags,
		LitKind: n.litk,
		Ival:    n.ival,
		Rval:    n.rval,
		Type:    packType(n.typ),
		Value:   pack(n.value),
	}
	if n.ref != nil {
		ext.RefIdent = n.ref.ident
		ext.RefKind = n.ref.kind
		ext.RefPos = n.ref.ival
	}
	for _, p := range n.params {
		ext.Params = append(ext.Params, pack(p))
	}
	return ext
}

func unpack(ext *extNode) *Node {
	if ext == nil {
		return nil
	}
	n := &Node{
		kind:  ext.Kind,
		ident: ext.Ident,
		loc:   ext.Loc,
		flags: ext.Flags,
		litk:  ext.LitKind,
		ival:  ext.Ival,
		rval:  ext.Rval,
		typ:   unpackType(ext.Type),
		value: unpack(ext.Value),
	}
	if ext.RefIdent != "" {
		// Stub declaration carrying only identity; callers re-link
		// against the analysed design as needed.
		n.ref = &Node{kind: ext.RefKind, ident: ext.RefIdent,
			ival: ext.RefPos, typ: n.typ}
	}
	for _, p := range ext.Params {
		n.params = append(n.params, unpack(p))
	}
	return n
}

// Write serializes n to w in the library's binary form.
func Write(w io.Writer, n *Node) error {
	return gob.NewEncoder(w).Encode(pack(n))
}

// Read deserializes a node written by Write.
func Read(r io.Reader) (*Node, error) {
	var ext extNode
	if err := gob.NewDecoder(r).Decode(&ext); err != nil {
		return nil, err
	}
	return unpack(&ext), nil
}
