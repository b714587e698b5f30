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

package main

import (
	"fmt"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"
)

// config holds the tool settings loadable from a TOML file.  Command-line
// flags override file values.
type config struct {
	LibPaths []string // directories searched for .vlib libraries
	Verbose  bool     // trace folding decisions
	NoColor  bool     // disable colored diagnostics
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(ctx *cli.Context) (config, error) {
	var cfg config

	if path := ctx.GlobalString(configFlag.Name); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("%s: %v", path, err)
		}
	}

	if ctx.GlobalIsSet(libPathFlag.Name) {
		cfg.LibPaths = ctx.GlobalStringSlice(libPathFlag.Name)
	}
	if ctx.GlobalBool(verboseFlag.Name) {
		cfg.Verbose = true
	}
	if ctx.GlobalBool(noColorFlag.Name) {
		cfg.NoColor = true
	}
	return cfg, nil
}
