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

// veridian is the developer tool for inspecting design libraries: listing
// analysed units and disassembling their lowered VIR.
package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/veridian-hdl/veridian/lang/diag"
	"github.com/veridian-hdl/veridian/lang/vir"
	"github.com/veridian-hdl/veridian/lib"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	libPathFlag = cli.StringSliceFlag{
		Name:  "L",
		Usage: "directory to search for libraries",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "trace folding decisions",
	}
	noColorFlag = cli.BoolFlag{
		Name:  "no-color",
		Usage: "disable colored diagnostics",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "veridian"
	app.Usage = "design library inspection tool"
	app.Flags = []cli.Flag{configFlag, libPathFlag, verboseFlag, noColorFlag}
	app.Commands = []cli.Command{
		{
			Name:      "ls",
			Usage:     "List analysed units in a library",
			ArgsUsage: "<library>",
			Action:    runLs,
		},
		{
			Name:      "dump",
			Usage:     "Disassemble the lowered VIR of a unit",
			ArgsUsage: "<library> <unit>",
			Action:    runDump,
		},
	}

	defer func() {
		// Fatal diagnostics unwind to here; the message has already
		// been printed.
		if r := recover(); r != nil {
			if _, ok := r.(*diag.FatalError); ok {
				os.Exit(1)
			}
			panic(r)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openLib resolves the library named by the first argument.
func openLib(ctx *cli.Context) (*lib.Library, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.NoColor {
		diag.EnableColor(false)
	}

	name := ctx.Args().First()
	if name == "" {
		return nil, fmt.Errorf("missing library name")
	}

	resolver := lib.NewResolver(cfg.LibPaths...)
	l, ok := resolver.Find(name)
	if !ok {
		return nil, fmt.Errorf("cannot find library %s", name)
	}
	return l, nil
}

func runLs(ctx *cli.Context) error {
	l, err := openLib(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	units, err := l.Units()
	if err != nil {
		return err
	}
	for _, u := range units {
		fmt.Println(u)
	}
	return nil
}

func runDump(ctx *cli.Context) error {
	l, err := openLib(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	unitName := ctx.Args().Get(1)
	if unitName == "" {
		return fmt.Errorf("missing unit name")
	}

	reg := vir.NewRegistry()
	if err := l.LoadVcode(unitName, reg); err != nil {
		return fmt.Errorf("cannot load vcode for %s: %v", unitName, err)
	}

	// The blob holds the unit itself plus any subprograms lowered with it.
	for _, name := range reg.Names() {
		dumpUnit(reg.Find(name))
	}
	return nil
}

// dumpUnit renders a unit's blocks as a table, one row per operation.
func dumpUnit(u *vir.Unit) {
	fmt.Printf("%s (%s, %d registers, %d variables)\n",
		u.Name, u.Kind, u.NumRegs, len(u.Vars))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Block", "Op", "Instruction"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for bi, blk := range u.Blocks {
		for oi := range blk.Ops {
			table.Append([]string{
				fmt.Sprintf("%d", bi),
				fmt.Sprintf("%d", oi),
				blk.Ops[oi].String(),
			})
		}
	}
	table.Render()
}
