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

package vir

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/tree"
)

// The binary form mirrors the in-memory structures with the bookmark node
// re-encoded through the tree serializer, so disk-loaded units keep their
// source anchors and image type information.

type extOp struct {
	Op       Opcode
	Result   Reg
	Args     []Reg
	Value    int64
	Real     float64
	Cmp      CmpKind
	Func     string
	Targets  []int
	Type     *Type
	Dim      int
	Address  VarRef
	Subkind  BoundsKind
	Loc      diag.Loc
	Bookmark []byte
}

type extBlock struct {
	Ops []extOp
}

type extUnit struct {
	Name    string
	Kind    UnitKind
	Context string
	Depth   int
	Blocks  []extBlock
	NumRegs int
	Vars    []Var
}

func packOp(op *Op) (extOp, error) {
	ext := extOp{
		Op: op.Op, Result: op.Result, Args: op.Args, Value: op.Value,
		Real: op.Real, Cmp: op.Cmp, Func: op.Func, Targets: op.Targets,
		Type: op.Type, Dim: op.Dim, Address: op.Address,
		Subkind: op.Subkind, Loc: op.Loc,
	}
	if op.Bookmark != nil {
		var buf bytes.Buffer
		if err := tree.Write(&buf, op.Bookmark); err != nil {
			return extOp{}, err
		}
		ext.Bookmark = buf.Bytes()
	}
	return ext, nil
}

func unpackOp(ext *extOp) (Op, error) {
	op := Op{
		Op: ext.Op, Result: ext.Result, Args: ext.Args, Value: ext.Value,
		Real: ext.Real, Cmp: ext.Cmp, Func: ext.Func, Targets: ext.Targets,
		Type: ext.Type, Dim: ext.Dim, Address: ext.Address,
		Subkind: ext.Subkind, Loc: ext.Loc,
	}
	if len(ext.Bookmark) > 0 {
		n, err := tree.Read(bytes.NewReader(ext.Bookmark))
		if err != nil {
			return Op{}, err
		}
		op.Bookmark = n
	}
	return op, nil
}

// Write serializes units to w in the library's binary form.
func Write(w io.Writer, units []*Unit) error {
	ext := make([]extUnit, len(units))
	for i, u := range units {
		ext[i] = extUnit{
			Name: u.Name, Kind: u.Kind, Context: u.Context,
			Depth: u.Depth, NumRegs: u.NumRegs, Vars: u.Vars,
		}
		for _, blk := range u.Blocks {
			eb := extBlock{Ops: make([]extOp, len(blk.Ops))}
			for j := range blk.Ops {
				eop, err := packOp(&blk.Ops[j])
				if err != nil {
					return err
				}
				eb.Ops[j] = eop
			}
			ext[i].Blocks = append(ext[i].Blocks, eb)
		}
	}
	return gob.NewEncoder(w).Encode(ext)
}

// Read deserializes units written by Write.
func Read(r io.Reader) ([]*Unit, error) {
	var ext []extUnit
	if err := gob.NewDecoder(r).Decode(&ext); err != nil {
		return nil, err
	}
	units := make([]*Unit, len(ext))
	for i := range ext {
		u := &Unit{
			Name: ext[i].Name, Kind: ext[i].Kind, Context: ext[i].Context,
			Depth: ext[i].Depth, NumRegs: ext[i].NumRegs, Vars: ext[i].Vars,
		}
		for _, eb := range ext[i].Blocks {
			blk := &Block{Ops: make([]Op, len(eb.Ops))}
			for j := range eb.Ops {
				op, err := unpackOp(&eb.Ops[j])
				if err != nil {
					return nil, err
				}
				blk.Ops[j] = op
			}
			u.Blocks = append(u.Blocks, blk)
		}
		units[i] = u
	}
	return units, nil
}
