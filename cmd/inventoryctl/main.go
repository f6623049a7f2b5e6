package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/cmd/inventoryctl/cli"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/app"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/organizations"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/cache"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/sections"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
)

const usage = `usage: inventoryctl <command> [flags]

commands:
  migrate                 apply pending schema migrations
  seed                    create a demo organization, admin, sections and items
  jobs trigger <name>     enqueue a background job now
  jobs stats              show default queue statistics
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, cfg, logger, stdout, stderr)
	case "seed":
		return runSeed(ctx, cfg, logger, args[1:], stdout, stderr)
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

func runMigrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, stdout, stderr io.Writer) int {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	defer pool.Close()
	return cli.MigrateCommand(ctx, func(ctx context.Context) (int, error) {
		return db.Migrate(ctx, pool, logger)
	}, cli.MigrateOptions{Stdout: stdout, Stderr: stderr})
}

func runSeed(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.SeedOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.AdminEmail, "email", "", "admin email")
	fs.StringVar(&opts.AdminPassword, "password", "", "admin password")
	fs.StringVar(&opts.AdminName, "name", "Demo Admin", "admin display name")
	fs.StringVar(&opts.Organization, "org", "Demo Organization", "organization name")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "seed: %v\n", err)
		return 1
	}
	defer pool.Close()

	var treeCache *cache.Versioned
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("seed without section cache invalidation", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		treeCache = cache.NewVersioned(redisClient, "sections", cfg.SectionCacheTTL)
	}

	orgService := organizations.NewService(organizations.NewRepository(pool), logger, organizations.ServiceConfig{LowStockThreshold: cfg.LowStockThreshold})
	userService := users.NewService(users.NewRepository(pool), orgService, logger)
	sectionService := sections.NewService(sections.NewRepository(pool), treeCache, logger)
	inventoryService := inventory.NewService(
		inventory.NewRepository(pool),
		shared.NewIdempotencyStore(pool),
		sectionService,
		nil,
		logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegative},
	)

	seeder := cli.Seeder{
		Users:         userService,
		Organizations: orgService,
		Sections:      sectionService,
		Inventory:     inventoryService,
	}
	return seeder.SeedCommand(ctx, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("jobs "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.JobsOptions{Stdout: stdout, Stderr: stderr}
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON output")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs: close: %v\n", err)
		}
	}()

	switch args[0] {
	case "trigger":
		opts.Name = fs.Arg(0)
		return jobsCLI.TriggerCommand(ctx, opts)
	case "stats":
		return jobsCLI.StatsCommand(ctx, opts)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown jobs command %q\n\n%s", args[0], usage)
		return 2
	}
}
