// Command feedbacklink drives the feedback backend from a terminal: request a
// magic link, open one, submit feedback and list stored entries.
//
// Configuration comes from an optional YAML file, then GOFEEDBACK_*
// environment variables (a .env file is loaded first when present).
//
//	feedbacklink request --email alice@example.com
//	feedbacklink open --link 'https://site/magic?email=alice@example.com&token=...' --feedback fb.yaml
//	feedbacklink submit --captcha <proof> --feedback fb.yaml
//	feedbacklink list --size 20 --sort-by rating --sort-dir asc
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// errUsage marks argument errors; main exits 2 for them.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	os.Exit(1)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := rootCommand(stdout, stderr)
	return root.execute(ctx, args)
}
