package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// command is one node of the CLI tree. Flags are registered into a fresh
// FlagSet on every execution.
type command struct {
	name     string
	summary  string
	flags    func(fs *pflag.FlagSet)
	run      func(ctx context.Context, args []string) error
	children []*command
	stderr   io.Writer
}

func (c *command) execute(ctx context.Context, args []string) error {
	if len(c.children) > 0 {
		if len(args) == 0 || isHelp(args[0]) {
			c.printHelp()
			if len(args) == 0 {
				return fmt.Errorf("%w: command required", errUsage)
			}
			return nil
		}
		for _, child := range c.children {
			if child.name == args[0] {
				return child.execute(ctx, args[1:])
			}
		}
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	fs := pflag.NewFlagSet(c.name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if c.flags != nil {
		c.flags(fs)
	}
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			c.printFlags(fs)
			return nil
		}
		return fmt.Errorf("%w: %s: %v", errUsage, c.name, err)
	}
	return c.run(ctx, fs.Args())
}

func (c *command) printHelp() {
	fmt.Fprintf(c.stderr, "%s\n\nUsage:\n  %s <command> [flags]\n\nCommands:\n", c.summary, c.name)
	tw := tabwriter.NewWriter(c.stderr, 2, 0, 3, ' ', 0)
	for _, child := range c.children {
		fmt.Fprintf(tw, "  %s\t%s\n", child.name, child.summary)
	}
	_ = tw.Flush()
}

func (c *command) printFlags(fs *pflag.FlagSet) {
	var b strings.Builder
	fs.SetOutput(&b)
	fs.PrintDefaults()
	fmt.Fprintf(c.stderr, "%s\n\nFlags:\n%s", c.summary, b.String())
}

func isHelp(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
