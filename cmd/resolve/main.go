// Command resolve is a demonstration harness over resolver.Resolver: it
// loads a TOML fixture describing installed modules and prints the
// winning wire map, or the formatted blame chain on failure.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/modwire/resolver/internal/fixture"
	"github.com/modwire/resolver/resolver"
)

type command struct {
	name string
	fn   func(args []string) error
}

var commands = []command{
	{"resolve", cmdResolve},
	{"dynamic", cmdDynamic},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	for _, c := range commands {
		if c.name == os.Args[1] {
			if err := c.fn(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: resolve <resolve|dynamic> [flags]")
}

func cmdResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	path := fs.String("fixture", "", "path to a TOML fixture file")
	root := fs.String("root", "", "module id to resolve")
	verbose := fs.Bool("v", false, "enable trace logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *root == "" {
		return errors.New("-fixture and -root are required")
	}

	env, modules, err := fixture.Load(*path)
	if err != nil {
		return errors.Wrap(err, "loading fixture")
	}
	rootMod, ok := modules[resolver.ModuleID(*root)]
	if !ok {
		return errors.Errorf("unknown module %q in fixture", *root)
	}

	r := resolver.NewResolver()
	if *verbose {
		r.SetTrace(logrus.StandardLogger())
	}

	wires, failure := r.Resolve(env, rootMod, nil)
	if failure != nil {
		return errors.New(failure.Error())
	}
	printWires(wires)
	return nil
}

func cmdDynamic(args []string) error {
	fs := flag.NewFlagSet("dynamic", flag.ExitOnError)
	path := fs.String("fixture", "", "path to a TOML fixture file")
	target := fs.String("target", "", "already-wired module id")
	pkg := fs.String("package", "", "package name to dynamically import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *target == "" || *pkg == "" {
		return errors.New("-fixture, -target and -package are required")
	}

	env, modules, err := fixture.Load(*path)
	if err != nil {
		return errors.Wrap(err, "loading fixture")
	}
	targetMod, ok := modules[resolver.ModuleID(*target)]
	if !ok {
		return errors.Errorf("unknown module %q in fixture", *target)
	}

	r := resolver.NewResolver()
	wires, failure := r.ResolveDynamic(env, targetMod, *pkg, nil)
	if failure != nil {
		return errors.New(failure.Error())
	}
	if wires == nil {
		fmt.Println("dynamic import inapplicable")
		return nil
	}
	printWires(wires)
	return nil
}

func printWires(wires resolver.WireMap) {
	for module, list := range wires {
		fmt.Printf("%s:\n", module)
		for _, w := range list {
			fmt.Printf("  %s -> %s\n", w.Requirement.ID, w.Provider)
		}
	}
}
