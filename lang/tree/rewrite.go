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

// RewriteFunc maps a node to its replacement.  Returning the input leaves
// the node unchanged.
type RewriteFunc func(*Node) *Node

// Rewrite traverses root bottom-up, applying fn to every node and splicing
// replacements into the parent links.  Declarations referenced from the
// tree are not traversed; only expression children (parameters and
// initializers) are.  Returns the (possibly replaced) root.
func Rewrite(root *Node, fn RewriteFunc) *Node {
	if root == nil {
		return nil
	}
	for i, p := range root.params {
		root.params[i] = Rewrite(p, fn)
	}
	if root.value != nil {
		root.value = Rewrite(root.value, fn)
	}
	return fn(root)
}
