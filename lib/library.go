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

// Package lib stores analysed design units and their lowered VIR on disk.
// A library is a directory holding a key-value store; unit blobs are keyed
// by name and carry a content digest that is verified on every read.
package lib

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set"
	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/crypto/sha3"

	"github.com/veridian-hdl/veridian/lang/tree"
	"github.com/veridian-hdl/veridian/lang/vir"
)

const (
	// Ext is the directory suffix of an on-disk library.
	Ext = ".vlib"

	// unitCacheSize bounds the number of decoded AST units kept in memory
	// per library.
	unitCacheSize = 128

	digestLen = 32

	unitPrefix  = "unit/"
	vcodePrefix = "vcode/"
)

// ErrCorrupt is returned when a stored blob fails its digest check.
var ErrCorrupt = errors.New("lib: corrupt library blob")

// ErrNotFound is returned when a unit is not present in the library.
var ErrNotFound = errors.New("lib: unit not found")

// Library is one open design library.
type Library struct {
	name   string
	db     *leveldb.DB
	cache  *lru.Cache // unit name -> *tree.Node
	loaded mapset.Set // unit names whose vcode has been registered
}

// Open opens or creates the library directory at path.
func Open(path string) (*Library, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("lib: open %s: %w", path, err)
	}
	cache, err := lru.New(unitCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), Ext)
	return &Library{
		name:   name,
		db:     db,
		cache:  cache,
		loaded: mapset.NewSet(),
	}, nil
}

// Close releases the underlying store.
func (l *Library) Close() error {
	return l.db.Close()
}

// Name returns the library's logical name, derived from its directory.
func (l *Library) Name() string { return l.name }

// seal prefixes blob with its Keccak-256 digest.
func seal(blob []byte) []byte {
	sum := sha3.Sum256(blob)
	return append(sum[:], blob...)
}

// unseal verifies and strips the digest prefix.
func unseal(blob []byte) ([]byte, error) {
	if len(blob) < digestLen {
		return nil, ErrCorrupt
	}
	sum := sha3.Sum256(blob[digestLen:])
	if !bytes.Equal(sum[:], blob[:digestLen]) {
		return nil, ErrCorrupt
	}
	return blob[digestLen:], nil
}

// PutUnit stores an analysed design unit under its identifier.
func (l *Library) PutUnit(unit *tree.Node) error {
	var buf bytes.Buffer
	if err := tree.Write(&buf, unit); err != nil {
		return err
	}
	key := []byte(unitPrefix + unit.Ident())
	if err := l.db.Put(key, seal(buf.Bytes()), nil); err != nil {
		return err
	}
	l.cache.Add(unit.Ident(), unit)
	return nil
}

// Get returns the analysed unit stored under unitName.
func (l *Library) Get(unitName string) (*tree.Node, error) {
	if cached, ok := l.cache.Get(unitName); ok {
		return cached.(*tree.Node), nil
	}

	blob, err := l.db.Get([]byte(unitPrefix+unitName), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	blob, err = unseal(blob)
	if err != nil {
		return nil, err
	}

	unit, err := tree.Read(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	l.cache.Add(unitName, unit)
	return unit, nil
}

// PutVcode stores the lowered VIR of unitName.
func (l *Library) PutVcode(unitName string, units []*vir.Unit) error {
	var buf bytes.Buffer
	if err := vir.Write(&buf, units); err != nil {
		return err
	}
	return l.db.Put([]byte(vcodePrefix+unitName), seal(buf.Bytes()), nil)
}

// LoadVcode reads the lowered VIR of unitName into reg.  Each unit's vcode
// is registered at most once per library handle.
func (l *Library) LoadVcode(unitName string, reg *vir.Registry) error {
	if l.loaded.Contains(unitName) {
		return nil
	}

	blob, err := l.db.Get([]byte(vcodePrefix+unitName), nil)
	if err == leveldb.ErrNotFound {
		return ErrNotFound
	} else if err != nil {
		return err
	}

	blob, err = unseal(blob)
	if err != nil {
		return err
	}

	units, err := vir.Read(bytes.NewReader(blob))
	if err != nil {
		return err
	}
	for _, u := range units {
		reg.Register(u)
	}
	l.loaded.Add(unitName)
	return nil
}

// Units returns the names of every analysed unit in the library.
func (l *Library) Units() ([]string, error) {
	var names []string
	it := l.db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		key := string(it.Key())
		if strings.HasPrefix(key, unitPrefix) {
			names = append(names, strings.TrimPrefix(key, unitPrefix))
		}
	}
	return names, it.Error()
}

// Resolver finds libraries by name along a search path.  Opened libraries
// stay open for the lifetime of the resolver.
type Resolver struct {
	paths []string
	open  map[string]*Library
}

// NewResolver returns a resolver searching the given directories.  An
// empty path list searches the working directory.
func NewResolver(paths ...string) *Resolver {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	return &Resolver{paths: paths, open: make(map[string]*Library)}
}

// Find opens the library called name, looking for <name>.vlib in each
// search directory.
func (r *Resolver) Find(name string) (*Library, bool) {
	if l, ok := r.open[name]; ok {
		return l, true
	}
	for _, dir := range r.paths {
		path := filepath.Join(dir, name+Ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		l, err := Open(path)
		if err != nil {
			continue
		}
		r.open[name] = l
		return l, true
	}
	return nil, false
}

// Close closes every library the resolver has opened.
func (r *Resolver) Close() {
	for _, l := range r.open {
		l.Close()
	}
	r.open = make(map[string]*Library)
}
