package cli

import (
	"context"
	"fmt"
	"io"
	"os"
)

// MigrateFunc applies pending schema migrations and reports how many ran.
type MigrateFunc func(ctx context.Context) (int, error)

// MigrateOptions defines the outputs of the migrate command.
type MigrateOptions struct {
	Stdout io.Writer
	Stderr io.Writer
}

// MigrateCommand runs migrate and prints the outcome.
func MigrateCommand(ctx context.Context, migrate MigrateFunc, opts MigrateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	applied, err := migrate(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	if applied == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "schema up to date")
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "applied %d migration(s)\n", applied)
	return 0
}
