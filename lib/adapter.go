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

package lib

import "github.com/veridian-hdl/veridian/lang/eval"

// Libraries adapts a Resolver to the narrow surface the constant folder
// consumes.
type Libraries struct {
	R *Resolver
}

// Find implements eval.LibraryResolver.
func (l Libraries) Find(name string) (eval.Library, bool) {
	found, ok := l.R.Find(name)
	if !ok {
		return nil, false
	}
	return found, true
}
